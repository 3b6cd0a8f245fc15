package coders

import "context"

// Dummy is a deterministic, offline coder used for smoke paths and tests.
// It echoes its input, launches nothing, and accepts extensions so
// translation can be exercised without a real assistant installed.
type Dummy struct {
	Base
}

func (d *Dummy) Name() string { return "dummy" }

func (d *Dummy) IsAvailable() bool { return true }

func (d *Dummy) SupportsExtensions() bool { return true }

func (d *Dummy) DefaultConfigPaths() map[string]ConfigRole {
	return map[string]ConfigRole{}
}

func (d *Dummy) DefaultConfigObjects() ([]ConfigObject, error) {
	return nil, nil
}

func (d *Dummy) Run(_ context.Context, input string) (*Output, error) {
	defaults, err := d.DefaultConfigObjects()
	if err != nil {
		return nil, err
	}
	if err := d.PrepareWorkdir(defaults); err != nil {
		return nil, err
	}
	text := "you said: " + d.ExpandPrompt(input)
	return &Output{
		Stdout:     text,
		ResultText: text,
		Success:    success(true),
	}, nil
}
