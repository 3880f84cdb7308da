package app

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/draw"
	"log/slog"
	"math/rand"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"

	"github.com/soocke/prompt-bot-go/config"
)

func noise(w, h int, seed int64) *image.RGBA {
	r := rand.New(rand.NewSource(seed))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = uint8(r.Intn(256)), uint8(r.Intn(256)), uint8(r.Intn(256)), 255
	}
	return img
}

// sceneGrabber serves copies of a fixed screen, or an error when failing.
type sceneGrabber struct {
	screen *image.RGBA
	fail   bool
}

func (g *sceneGrabber) CaptureScreen() (*image.RGBA, error) {
	return g.CaptureRect(g.screen.Bounds())
}

func (g *sceneGrabber) CaptureRect(r image.Rectangle) (*image.RGBA, error) {
	if g.fail {
		return nil, errors.New("no display")
	}
	out := image.NewRGBA(r)
	draw.Draw(out, r, g.screen, r.Min, draw.Src)
	return out, nil
}

// keyLog records backend calls.
type keyLog struct {
	mu     sync.Mutex
	events []string
}

func (k *keyLog) Name() string { return "test" }

func (k *keyLog) KeyDown(key string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.events = append(k.events, "down:"+key)
	return nil
}

func (k *keyLog) KeyUp(key string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.events = append(k.events, "up:"+key)
	return nil
}

func (k *keyLog) count(ev string) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	n := 0
	for _, e := range k.events {
		if e == ev {
			n++
		}
	}
	return n
}

func testConfig(dir string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.TemplatesDir = dir
	cfg.PressMS = 0
	cfg.AlertOnHalt = true
	cfg.Spam.Keys = []string{"a", "b"}
	cfg.Spam.Region = config.Region{Left: 0, Top: 0, Width: 80, Height: 60}
	cfg.Spam.SpamIntervalMS = 2
	cfg.Spam.ScanIntervalMS = 2
	cfg.Hold.Enabled = false
	return cfg
}

func TestRun_SpamPressesDetectedKey(t *testing.T) {
	dir := t.TempDir()
	tmpl := noise(16, 12, 7)
	if err := imaging.Save(tmpl, filepath.Join(dir, "a.png")); err != nil {
		t.Fatal(err)
	}
	if err := imaging.Save(noise(16, 12, 99), filepath.Join(dir, "b.png")); err != nil {
		t.Fatal(err)
	}
	screen := noise(80, 60, 1)
	draw.Draw(screen, image.Rect(30, 20, 46, 32), tmpl, image.Point{}, draw.Src)

	keys := &keyLog{}
	c := BuildContainer(testConfig(dir), nil, Deps{Grabber: &sceneGrabber{screen: screen}, Backend: keys})
	if c.SpamLibrary.Len() != 2 {
		t.Fatalf("templates loaded: %d", c.SpamLibrary.Len())
	}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- New(c).Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for keys.count("up:a") < 3 {
		if time.Now().After(deadline) {
			t.Fatal("key a was not spammed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return after cancel")
	}
	if keys.count("down:b") != 0 {
		t.Fatal("undetected key b was pressed")
	}
	if c.SpamSource.Stats().Captures == 0 {
		t.Fatal("no captures recorded")
	}
}

func TestRun_HaltRaisesAlertAndReturns(t *testing.T) {
	dir := t.TempDir()
	if err := imaging.Save(noise(8, 8, 3), filepath.Join(dir, "a.png")); err != nil {
		t.Fatal(err)
	}
	cfg := testConfig(dir)
	cfg.MaxErrors = 2

	var (
		mu     sync.Mutex
		alerts []string
	)
	c := BuildContainer(cfg, nil, Deps{
		Grabber: &sceneGrabber{screen: noise(80, 60, 1), fail: true},
		Backend: &keyLog{},
		Alert: func(title, msg string) error {
			mu.Lock()
			alerts = append(alerts, msg)
			mu.Unlock()
			return nil
		},
	})

	errc := make(chan error, 1)
	go func() { errc <- New(c).Run(context.Background()) }()
	select {
	case err := <-errc:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("run did not return after halt")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(alerts) != 1 {
		t.Fatalf("expected one alert, got %v", alerts)
	}
	if !c.Spam.State().Halted() {
		t.Fatal("spam engine should be halted")
	}
}

func TestRun_NothingToRun(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.Hold.Enabled = true
	c := BuildContainer(cfg, nil, Deps{Grabber: &sceneGrabber{screen: noise(8, 8, 1)}, Backend: &keyLog{}})
	if err := New(c).Run(context.Background()); !errors.Is(err, ErrNothingToRun) {
		t.Fatalf("expected ErrNothingToRun, got %v", err)
	}
}

func TestBuildContainer_HoldScale(t *testing.T) {
	dir := t.TempDir()
	if err := imaging.Save(noise(20, 10, 5), filepath.Join(dir, "chatgo.png")); err != nil {
		t.Fatal(err)
	}
	cfg := testConfig(dir)
	cfg.Hold.FastMode = true
	cfg.Hold.Scale = 0.5
	c := BuildContainer(cfg, nil, Deps{Grabber: &sceneGrabber{screen: noise(8, 8, 1)}, Backend: &keyLog{}})
	tm, ok := c.HoldLibrary.Get("chatgo.png")
	if !ok {
		t.Fatal("hold template not loaded")
	}
	if b := tm.Image.Bounds(); b.Dx() != 10 || b.Dy() != 5 {
		t.Fatalf("hold template not downscaled: %v", b)
	}
	if k, _ := c.HoldLibrary.KeyFor("chatgo.png"); k != "e" {
		t.Fatalf("hold key %q", k)
	}
}

// syncBuffer guards a bytes.Buffer shared between the test and engine goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRun_LogsActiveSpamKeysOnChange(t *testing.T) {
	dir := t.TempDir()
	tmpl := noise(16, 12, 7)
	if err := imaging.Save(tmpl, filepath.Join(dir, "a.png")); err != nil {
		t.Fatal(err)
	}
	screen := noise(80, 60, 1)
	draw.Draw(screen, image.Rect(30, 20, 46, 32), tmpl, image.Point{}, draw.Src)

	out := &syncBuffer{}
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug}))
	keys := &keyLog{}
	c := BuildContainer(testConfig(dir), logger, Deps{Grabber: &sceneGrabber{screen: screen}, Backend: keys})

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- New(c).Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for c.Spam.Cycles() < 5 {
		if time.Now().After(deadline) {
			t.Fatal("spam engine did not cycle")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-errc; err != nil {
		t.Fatal(err)
	}

	var lines []string
	for _, l := range strings.Split(out.String(), "\n") {
		if strings.Contains(l, `msg="spam keys"`) {
			lines = append(lines, l)
		}
	}
	if len(lines) != 1 {
		t.Fatalf("expected one key-set log for a steady scene, got %d:\n%s", len(lines), strings.Join(lines, "\n"))
	}
	if !strings.Contains(lines[0], "keys=[a]") {
		t.Fatalf("key set not logged: %s", lines[0])
	}
}
