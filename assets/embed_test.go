package assets

import (
	"reflect"
	"testing"

	"github.com/soocke/prompt-bot-go/config"
)

func TestDefaultConfigMatchesCode(t *testing.T) {
	got, err := DefaultConfig()
	if err != nil {
		t.Fatal(err)
	}
	want := config.DefaultConfig()
	_ = want.Validate()
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("embedded config drifted from DefaultConfig:\n got %+v\nwant %+v", got, want)
	}
}
