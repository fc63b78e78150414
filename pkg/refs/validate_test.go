package refs

import "testing"

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		ref     string
		wantErr bool
	}{
		{name: "head", ref: "HEAD"},
		{name: "branch", ref: "refs/heads/master"},
		{name: "nested branch", ref: "refs/heads/feature/login"},
		{name: "tag", ref: "refs/tags/v1.0.0"},
		{name: "remote", ref: "refs/remotes/origin/main"},
		{name: "empty", ref: "", wantErr: true},
		{name: "not under refs", ref: "heads/master", wantErr: true},
		{name: "trailing slash", ref: "refs/heads/master/", wantErr: true},
		{name: "trailing dot", ref: "refs/heads/master.", wantErr: true},
		{name: "lock suffix", ref: "refs/heads/master.lock", wantErr: true},
		{name: "double dot", ref: "refs/heads/a..b", wantErr: true},
		{name: "double slash", ref: "refs/heads//master", wantErr: true},
		{name: "reflog shorthand", ref: "refs/heads/a@{1}", wantErr: true},
		{name: "space", ref: "refs/heads/a b", wantErr: true},
		{name: "tilde", ref: "refs/heads/a~1", wantErr: true},
		{name: "caret", ref: "refs/heads/a^2", wantErr: true},
		{name: "colon", ref: "refs/heads/a:b", wantErr: true},
		{name: "question mark", ref: "refs/heads/a?", wantErr: true},
		{name: "asterisk", ref: "refs/heads/a*", wantErr: true},
		{name: "open bracket", ref: "refs/heads/a[b", wantErr: true},
		{name: "backslash", ref: "refs/heads/a\\b", wantErr: true},
		{name: "control character", ref: "refs/heads/a\x01b", wantErr: true},
		{name: "hidden segment", ref: "refs/heads/.hidden", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verr := ValidateName(tt.ref)
			if tt.wantErr && verr == nil {
				t.Errorf("ValidateName(%q) expected error", tt.ref)
			}
			if !tt.wantErr && verr != nil {
				t.Errorf("ValidateName(%q) unexpected error: %v", tt.ref, verr)
			}
		})
	}
}

func TestQualify(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{input: "HEAD", want: "HEAD"},
		{input: "refs/heads/master", want: "refs/heads/master"},
		{input: "refs/tags/v1", want: "refs/tags/v1"},
		{input: "master", want: "refs/heads/master"},
		{input: "feature/login", want: "refs/heads/feature/login"},
	}

	for _, tt := range tests {
		if got := Qualify(tt.input); got != tt.want {
			t.Errorf("Qualify(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
