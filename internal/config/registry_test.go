package config_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/MrWong99/livesegment/internal/config"
	"github.com/MrWong99/livesegment/pkg/provider/stt"
	sttmock "github.com/MrWong99/livesegment/pkg/provider/stt/mock"
	"github.com/MrWong99/livesegment/pkg/provider/vad"
	vadmock "github.com/MrWong99/livesegment/pkg/provider/vad/mock"
)

func TestRegistry_CreateSTT(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	want := &sttmock.Provider{}
	var got config.ProviderEntry
	reg.RegisterSTT("fake", func(e config.ProviderEntry) (stt.Provider, error) {
		got = e
		return want, nil
	})

	p, err := reg.CreateSTT(config.ProviderEntry{Name: "fake", Model: "m"})
	if err != nil {
		t.Fatalf("CreateSTT: %v", err)
	}
	if p != want || got.Model != "m" {
		t.Errorf("factory got %+v, returned %v", got, p)
	}

	_, err = reg.CreateSTT(config.ProviderEntry{Name: "missing"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("err = %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistry_CreateVAD(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	engine := &vadmock.Engine{}
	reg.RegisterVAD("fake", func(config.ProviderEntry) (vad.Engine, error) { return engine, nil })

	e, err := reg.CreateVAD(config.ProviderEntry{Name: "fake"})
	if err != nil || e != engine {
		t.Fatalf("CreateVAD = %v, %v", e, err)
	}
	if _, err := reg.CreateVAD(config.ProviderEntry{Name: "silero"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("err = %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	boom := errors.New("boom")
	reg.RegisterSTT("bad", func(config.ProviderEntry) (stt.Provider, error) { return nil, boom })
	if _, err := reg.CreateSTT(config.ProviderEntry{Name: "bad"}); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
}

func TestRegistry_STTNames(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	for _, n := range []string{"whisper", "deepgram", "openai"} {
		reg.RegisterSTT(n, func(config.ProviderEntry) (stt.Provider, error) { return nil, nil })
	}
	if got := reg.STTNames(); !slices.Equal(got, []string{"deepgram", "openai", "whisper"}) {
		t.Errorf("STTNames = %v", got)
	}
}
