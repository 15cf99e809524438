package backends

import (
	"errors"
	"fmt"
	"testing"
)

func TestMergeRequestValidate(t *testing.T) {
	models := []string{"base", "ft-1", "ft-2"}
	cases := []struct {
		name string
		req  MergeRequest
		want error
	}{
		{"valid", MergeRequest{Models: models, BaseIndex: 0}, nil},
		{"valid last base", MergeRequest{Models: models, BaseIndex: 2, Signs: []float64{1, -1, 1}}, nil},
		{"no models", MergeRequest{}, ErrNoModels},
		{"negative base", MergeRequest{Models: models, BaseIndex: -1}, ErrBaseIndexOutOfRange},
		{"base past end", MergeRequest{Models: models, BaseIndex: 3}, ErrBaseIndexOutOfRange},
		{"signs length", MergeRequest{Models: models, Signs: []float64{1}}, ErrSignsLength},
		{"blank model", MergeRequest{Models: []string{"base", ""}}, ErrModelNotFound},
	}
	for _, tc := range cases {
		err := tc.req.Validate()
		if tc.want == nil {
			if err != nil {
				t.Fatalf("%s: unexpected error %v", tc.name, err)
			}
			continue
		}
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: error = %v, want %v", tc.name, err, tc.want)
		}
	}
}

func TestRemoteErrorUnwrapsToSentinel(t *testing.T) {
	cases := map[string]error{
		"model_not_found":            ErrModelNotFound,
		"INCOMPATIBLE_ARCHITECTURES": ErrIncompatibleArchitectures,
		"io":                         ErrIO,
		"metric":                     ErrMetric,
	}
	for code, want := range cases {
		err := fmt.Errorf("merge: %w", &RemoteError{Code: code, Message: "boom"})
		if !errors.Is(err, want) {
			t.Fatalf("code %q: expected %v in chain, got %v", code, want, err)
		}
	}

	unknown := &RemoteError{Code: "oom", Message: "out of memory"}
	if errors.Is(unknown, ErrIO) || unknown.Error() != "oom: out of memory" {
		t.Fatalf("unexpected unknown code handling: %v", unknown)
	}
	if (&RemoteError{Message: "plain"}).Error() != "plain" {
		t.Fatal("expected bare message when code is empty")
	}
}

func TestErrorCode(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{&RemoteError{Code: "IO", Message: "disk full"}, CodeIO},
		{fmt.Errorf("load: %w", ErrModelNotFound), CodeModelNotFound},
		{fmt.Errorf("merge: %w", &RemoteError{Code: CodeIncompatibleArchitectures}), CodeIncompatibleArchitectures},
		{fmt.Errorf("evaluate: %w", ErrMetric), CodeMetric},
		{ErrSignsLength, ""},
		{errors.New("plain"), ""},
	}
	for _, tc := range cases {
		if got := ErrorCode(tc.err); got != tc.want {
			t.Fatalf("ErrorCode(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
