package main

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gojek/heimdall/v7"
	"github.com/gojek/heimdall/v7/httpclient"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	flagAddr     string
	flagStart    bool
	flagSnapshot bool
	flagRetries  int
)

var pushCmd = &cobra.Command{
	Use:   "push <recording>",
	Short: "Send a recording to a callprofd daemon",
	Args:  cobra.ExactArgs(1),
	Run:   runPush,
}

func init() {
	pushCmd.Flags().StringVar(&flagAddr, "addr", "http://localhost:8080",
		"daemon base url")
	pushCmd.Flags().BoolVar(&flagStart, "start", false,
		"start a session before sending the events")
	pushCmd.Flags().BoolVar(&flagSnapshot, "snapshot", false,
		"ask the daemon for a snapshot once the events are applied")
	pushCmd.Flags().IntVar(&flagRetries, "retries", 3,
		"retries on server errors")
}

type pusher struct {
	addr   string
	client *httpclient.Client
}

func newPusher(addr string, retries int) *pusher {
	backoff := heimdall.NewExponentialBackoff(100*time.Millisecond, 2*time.Second, 2, 50*time.Millisecond)
	return &pusher{
		addr: strings.TrimSuffix(addr, "/"),
		client: httpclient.NewClient(
			httpclient.WithHTTPTimeout(30*time.Second),
			httpclient.WithRetrier(heimdall.NewRetrier(backoff)),
			httpclient.WithRetryCount(retries),
		),
	}
}

func (p *pusher) post(path string, body io.Reader, headers http.Header) ([]byte, error) {
	resp, err := p.client.Post(p.addr+path, body, headers)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("%s: %s: %s", path, resp.Status, bytes.TrimSpace(b))
	}
	return b, nil
}

// pushEvents sends the recording brotli compressed.
func (p *pusher) pushEvents(rd io.Reader) ([]byte, error) {
	var b bytes.Buffer
	w := brotli.NewWriter(&b)
	if _, err := io.Copy(w, rd); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	headers := http.Header{}
	headers.Set("Content-Encoding", "br")
	headers.Set("Content-Type", "application/x-ndjson")
	return p.post("/events", &b, headers)
}

func runPush(cmd *cobra.Command, args []string) {
	f, err := os.Open(args[0])
	if err != nil {
		log.Fatal().Err(err).Msg("cannot open recording")
	}
	defer f.Close()

	p := newPusher(flagAddr, flagRetries)
	if flagStart {
		if _, err := p.post("/session/start", nil, http.Header{}); err != nil {
			log.Fatal().Err(err).Msg("cannot start session")
		}
	}
	resp, err := p.pushEvents(f)
	if err != nil {
		log.Fatal().Err(err).Str("recording", args[0]).Msg("cannot push recording")
	}
	log.Info().RawJSON("response", resp).Msg("events applied")

	if flagSnapshot {
		resp, err := p.post("/snapshots", nil, http.Header{})
		if err != nil {
			log.Fatal().Err(err).Msg("cannot take snapshot")
		}
		log.Info().RawJSON("response", resp).Msg("snapshot taken")
	}
}
