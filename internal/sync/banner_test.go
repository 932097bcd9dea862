package sync

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestRenderBanner(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantEmpty  bool
		wantChecks []func(t *testing.T, output string)
	}{
		{
			name:      "nil error produces no output",
			err:       nil,
			wantEmpty: true,
		},
		{
			name: "too many files names the file budget",
			err:  ErrTooManyFiles,
			wantChecks: []func(t *testing.T, output string){
				func(t *testing.T, output string) {
					if !strings.Contains(output, ErrTooManyFiles.Error()) {
						t.Errorf("expected error text in output: %s", output)
					}
				},
				func(t *testing.T, output string) {
					if !strings.Contains(output, "at most 1000 files") {
						t.Errorf("expected file budget in output: %s", output)
					}
				},
			},
		},
		{
			name: "oversized project names the byte budget",
			err:  ErrProjectTooLarge,
			wantChecks: []func(t *testing.T, output string){
				func(t *testing.T, output string) {
					if !strings.Contains(output, "at most 20000000 bytes") {
						t.Errorf("expected size budget in output: %s", output)
					}
				},
			},
		},
		{
			name: "unknown error has no detail line",
			err:  errors.New("relay unreachable"),
			wantChecks: []func(t *testing.T, output string){
				func(t *testing.T, output string) {
					if !strings.Contains(output, "relay unreachable") {
						t.Errorf("expected error text in output: %s", output)
					}
					if strings.Contains(output, "at most") {
						t.Errorf("expected no budget detail: %s", output)
					}
				},
			},
		},
		{
			name: "non-TTY output strips ANSI codes",
			err:  ErrProjectTooLarge,
			wantChecks: []func(t *testing.T, output string){
				func(t *testing.T, output string) {
					if strings.Contains(output, "\033[") {
						t.Errorf("expected no ANSI escape codes for non-TTY writer: %s", output)
					}
				},
			},
		},
		{
			name: "output contains actionable command",
			err:  ErrTooManyFiles,
			wantChecks: []func(t *testing.T, output string){
				func(t *testing.T, output string) {
					if !strings.Contains(output, "mhk relay") {
						t.Errorf("expected relay command in output: %s", output)
					}
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			RenderBanner(tt.err, &buf)
			output := buf.String()

			if tt.wantEmpty {
				if output != "" {
					t.Errorf("expected empty output, got: %q", output)
				}
				return
			}
			for _, check := range tt.wantChecks {
				check(t, output)
			}
		})
	}
}

func TestBannerAlerter(t *testing.T) {
	var buf bytes.Buffer
	BannerAlerter{W: &buf}.Alert(ErrTooManyFiles)

	if !strings.Contains(buf.String(), ErrTooManyFiles.Error()) {
		t.Errorf("expected alert rendered to writer, got: %q", buf.String())
	}
}
