package receiver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/tidwall/gjson"
)

// NewRunID returns an id of the form "test-run-xxxxxxxx".
func NewRunID() string {
	id := strings.ToLower(ulid.Make().String())
	return "test-run-" + id[len(id)-8:]
}

// Probe is the bundled test client. It sends a known sequence with one
// duplicate and one gap so a receiver's detection can be checked by eye.
type Probe struct {
	BaseURL string
	RunID   string
	Client  *http.Client
	Out     io.Writer
}

// NewProbe targets baseURL with a fresh run id and writes its report to out.
func NewProbe(baseURL string, out io.Writer) *Probe {
	if out == nil {
		out = io.Discard
	}
	return &Probe{
		BaseURL: strings.TrimRight(baseURL, "/"),
		RunID:   NewRunID(),
		Client:  &http.Client{Timeout: 10 * time.Second},
		Out:     out,
	}
}

// Run sends counters 1..5, a duplicate 3 and a gap to 8, then prints and
// returns the receiver's error list. Send failures are reported and skipped.
func (p *Probe) Run(ctx context.Context) ([]ErrorRecord, error) {
	fmt.Fprintln(p.Out, "Receiver Test Client")
	fmt.Fprintln(p.Out, "--------------------")
	fmt.Fprintf(p.Out, "Using Run ID: %s\n", p.RunID)

	p.SendSequence(ctx, 1, 5)
	p.report(ctx, 3)
	p.report(ctx, 8)

	fmt.Fprintln(p.Out, "\nFetching current errors...")
	records, err := p.FetchErrors(ctx)
	if err != nil {
		fmt.Fprintf(p.Out, "Error fetching errors: %v\n", err)
		return nil, err
	}

	fmt.Fprintf(p.Out, "Total errors: %d\n", len(records))
	if len(records) > 0 {
		fmt.Fprintln(p.Out, "\nError details:")
		for _, rec := range records {
			fmt.Fprintf(p.Out, "- Counter: %d, RunID: %s\n", rec.Counter, rec.RunID)
			fmt.Fprintf(p.Out, "  Error: %s\n", rec.ErrorMessage)
			fmt.Fprintf(p.Out, "  Time: %s\n", rec.Timestamp.Format(time.RFC3339))
		}
	}
	return records, nil
}

// SendSequence posts count counters starting at start.
func (p *Probe) SendSequence(ctx context.Context, start, count int) {
	fmt.Fprintf(p.Out, "\nSending %d sequential counter values starting from %d...\n", count, start)
	for i := 0; i < count; i++ {
		p.report(ctx, start+i)
	}
}

func (p *Probe) report(ctx context.Context, counter int) {
	fmt.Fprintf(p.Out, "Sending request with counter=%d, runID=%s\n", counter, p.RunID)
	status, err := p.Send(ctx, counter)
	if err != nil {
		fmt.Fprintf(p.Out, "Error sending request: %v\n", err)
		return
	}
	fmt.Fprintf(p.Out, "Response: %d %s\n", status, http.StatusText(status))
}

// Send posts one counter and returns the response status.
func (p *Probe) Send(ctx context.Context, counter int) (int, error) {
	body, err := json.Marshal(Data{Counter: counter, RunID: p.RunID})
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/api/data", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}

// FetchErrors reads GET /api/errors.
func (p *Probe) FetchErrors(ctx context.Context) ([]ErrorRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.BaseURL+"/api/errors", nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read errors: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch errors: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	return parseErrorRecords(body)
}

func parseErrorRecords(body []byte) ([]ErrorRecord, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("error list is not valid JSON")
	}
	list := gjson.ParseBytes(body)
	if !list.IsArray() {
		return nil, fmt.Errorf("error list is not an array")
	}

	records := make([]ErrorRecord, 0, len(list.Array()))
	list.ForEach(func(_, v gjson.Result) bool {
		rec := ErrorRecord{
			Counter:      int(v.Get("counter").Int()),
			RunID:        v.Get("runID").String(),
			ErrorMessage: v.Get("errorMessage").String(),
		}
		if ts, err := time.Parse(time.RFC3339Nano, v.Get("timestamp").String()); err == nil {
			rec.Timestamp = ts
		}
		records = append(records, rec)
		return true
	})
	return records, nil
}
