package api

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"run-sphere/internal/service"
)

func float(v float64) *float64 { return &v }

func TestDecodeRunRequest(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    service.SubmitInput
		wantErr bool
	}{
		{"empty", "", service.SubmitInput{}, false},
		{"whitespace", "  \n", service.SubmitInput{}, false},
		{"full", `{"language":"python","code":"print(1)","stdin":"x","timeoutMs":1500}`,
			service.SubmitInput{Language: "python", Code: "print(1)", Stdin: "x", TimeoutMs: float(1500)}, false},
		{"timeout as string ignored", `{"code":"x","timeoutMs":"1500"}`,
			service.SubmitInput{Code: "x"}, false},
		{"null timeout ignored", `{"code":"x","timeoutMs":null}`,
			service.SubmitInput{Code: "x"}, false},
		{"numeric code dropped", `{"code":12,"language":"c"}`,
			service.SubmitInput{Language: "c"}, false},
		{"non-string stdin kept as json", `{"code":"x","stdin":[1,2]}`,
			service.SubmitInput{Code: "x", Stdin: "[1,2]"}, false},
		{"null stdin", `{"code":"x","stdin":null}`,
			service.SubmitInput{Code: "x"}, false},
		{"array", `[1]`, service.SubmitInput{}, true},
		{"truncated", `{"code":"x"`, service.SubmitInput{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeRunRequest([]byte(tt.body))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("decodeRunRequest mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
