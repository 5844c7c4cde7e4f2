package httputil

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/getsentry/sentry-go"

	"github.com/getsentry/callprof/internal/testutil"
)

func echo(w http.ResponseWriter, r *http.Request) {
	b, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	_, _ = w.Write(b)
}

func TestDecompressPayload(t *testing.T) {
	const payload = `{"type":"enter","ctx":1,"fn":1,"ts":1}`

	var br bytes.Buffer
	bw := brotli.NewWriter(&br)
	_, _ = bw.Write([]byte(payload))
	_ = bw.Close()

	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	_, _ = gw.Write([]byte(payload))
	_ = gw.Close()

	tests := []struct {
		name       string
		encoding   string
		body       []byte
		wantStatus int
		wantBody   string
	}{
		{
			name:       "plain",
			body:       []byte(payload),
			wantStatus: http.StatusOK,
			wantBody:   payload,
		},
		{
			name:       "brotli",
			encoding:   "br",
			body:       br.Bytes(),
			wantStatus: http.StatusOK,
			wantBody:   payload,
		},
		{
			name:       "gzip",
			encoding:   "gzip",
			body:       gz.Bytes(),
			wantStatus: http.StatusOK,
			wantBody:   payload,
		},
		{
			name:       "broken gzip",
			encoding:   "gzip",
			body:       []byte(payload),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unsupported",
			encoding:   "zstd",
			body:       []byte(payload),
			wantStatus: http.StatusUnsupportedMediaType,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/events", bytes.NewReader(test.body))
			if test.encoding != "" {
				req.Header.Set("Content-Encoding", test.encoding)
			}
			w := httptest.NewRecorder()
			DecompressPayload(http.HandlerFunc(echo)).ServeHTTP(w, req)
			if w.Code != test.wantStatus {
				t.Fatalf("expected status %d, got %d", test.wantStatus, w.Code)
			}
			if test.wantStatus == http.StatusOK && w.Body.String() != test.wantBody {
				t.Fatalf("expected body %q, got %q", test.wantBody, w.Body.String())
			}
		})
	}
}

func TestGetRequiredQueryParameters(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/snapshots/merge?ids=a,b", nil)
	w := httptest.NewRecorder()
	params, _, ok := GetRequiredQueryParameters(w, req, "ids")
	if !ok {
		t.Fatal("expected the ids parameter to be found")
	}
	if diff := testutil.Diff(params, map[string]string{"ids": "a,b"}); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}

	w = httptest.NewRecorder()
	if _, _, ok := GetRequiredQueryParameters(w, req, "ids", "clock"); ok {
		t.Fatal("expected a missing clock parameter")
	}
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "clock") {
		t.Fatalf("unexpected response %d %q", w.Code, w.Body.String())
	}
}

func TestOptionalParameters(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/functions?context_id=7&builtins=true&tag=x", nil)

	id, err := OptionalUintParameter(req, "context_id")
	if err != nil || id == nil || *id != 7 {
		t.Fatalf("expected context id 7, got %v (%v)", id, err)
	}
	if id, err := OptionalUintParameter(req, "missing"); id != nil || err != nil {
		t.Fatalf("expected nothing for a missing parameter, got %v (%v)", id, err)
	}
	if _, err := OptionalUintParameter(req, "tag"); err == nil {
		t.Fatal("expected an error for a non numeric tag")
	}
	if b, err := BoolParameter(req, "builtins"); !b || err != nil {
		t.Fatalf("expected builtins to be true, got %v (%v)", b, err)
	}
	if got := QueryParameter(req, "sort", "ttot"); got != "ttot" {
		t.Fatalf("expected the fallback, got %q", got)
	}
}

func TestBeforeSendTransaction(t *testing.T) {
	tests := []struct {
		name  string
		event *sentry.Event
		hint  *sentry.EventHint
		want  *sentry.Event
	}{
		{
			name:  "snapshot id",
			event: &sentry.Event{Transaction: "GET /snapshots/1b4e28ba-2fa1-11d2-883f-0016d3cca427"},
			hint:  &sentry.EventHint{Response: &http.Response{StatusCode: 404}},
			want: &sentry.Event{
				Transaction: "GET /snapshots/:id",
				Tags:        map[string]string{HTTPStatusCodeTag: "404"},
			},
		},
		{
			name:  "id in the middle",
			event: &sentry.Event{Transaction: "GET /snapshots/1b4e28ba2fa111d2883f0016d3cca427/callgrind"},
			hint:  &sentry.EventHint{},
			want:  &sentry.Event{Transaction: "GET /snapshots/:id/callgrind"},
		},
		{
			name:  "no id",
			event: &sentry.Event{Transaction: "POST /events", Tags: map[string]string{HTTPStatusCodeTag: "204"}},
			hint:  &sentry.EventHint{Response: &http.Response{StatusCode: 500}},
			want:  &sentry.Event{Transaction: "POST /events", Tags: map[string]string{HTTPStatusCodeTag: "204"}},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := BeforeSendTransaction(test.event, test.hint)
			if got.Transaction != test.want.Transaction {
				t.Fatalf("expected transaction %q, got %q", test.want.Transaction, got.Transaction)
			}
			if diff := testutil.Diff(got.Tags, test.want.Tags); diff != "" {
				t.Fatalf("Result mismatch: got - want +\n%s", diff)
			}
		})
	}
}
