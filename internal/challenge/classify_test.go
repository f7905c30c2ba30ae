package challenge

import "testing"

func TestClassify(t *testing.T) {
	t.Parallel()

	challengePage := `<html><script src="https://x.token.example.com/challenge.js"></script>` +
		`<script>window.gokuProps = {"key":"k"};</script></html>`

	tests := []struct {
		name   string
		status int
		body   string
		want   Classification
	}{
		{
			name:   "202 is challenged regardless of body",
			status: 202,
			body:   "",
			want:   ClassChallenged,
		},
		{
			name:   "403 is challenged regardless of body",
			status: 403,
			body:   "Forbidden",
			want:   ClassChallenged,
		},
		{
			name:   "200 with both challenge markers is challenged",
			status: 200,
			body:   challengePage,
			want:   ClassChallenged,
		},
		{
			name:   "200 with success marker is accepted",
			status: 200,
			body:   `{"result": "Success"}`,
			want:   ClassAccepted,
		},
		{
			name:   "200 with valid marker is accepted",
			status: 200,
			body:   "slot is VALID",
			want:   ClassAccepted,
		},
		{
			name:   "200 with one marker and success is accepted",
			status: 200,
			body:   `{"gokuProps": null, "result": "success"}`,
			want:   ClassAccepted,
		},
		{
			name:   "200 without markers is rejected",
			status: 200,
			body:   "nothing to see",
			want:   ClassRejected,
		},
		{
			name:   "500 is rejected",
			status: 500,
			body:   "internal error",
			want:   ClassRejected,
		},
		{
			name:   "400 with success text is rejected",
			status: 400,
			body:   "not success",
			want:   ClassRejected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := Classify(tt.status, []byte(tt.body)); got != tt.want {
				t.Errorf("Classify(%d, %q) = %v, want %v", tt.status, tt.body, got, tt.want)
			}
		})
	}
}

func TestClassificationString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		c    Classification
		want string
	}{
		{ClassAccepted, "accepted"},
		{ClassChallenged, "challenged"},
		{ClassRejected, "rejected"},
		{Classification(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.c.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
