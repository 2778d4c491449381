package prober

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Outcome keeps a probe's error alongside its verdict. Aggregation treats Err != nil as absent.
type Outcome struct {
	Name    string
	URL     string
	Present bool
	Status  int
	Header  map[string][]string
	Body    string
	Err     error
}

// Detected is the verdict the aggregation layer consumes.
func (o Outcome) Detected() bool {
	return o.Err == nil && o.Present
}

// Matcher decides whether a probe response means the probed condition is present.
type Matcher func(*Response) bool

// Status2xx matches any successful response.
func Status2xx(r *Response) bool {
	return r.Is2xx()
}

// Probe runs one request and evaluates it. Failures are recorded on the outcome and logged, never returned.
func (c *Client) Probe(ctx context.Context, r Request, match Matcher) Outcome {
	out := Outcome{Name: r.Name, URL: r.URL}
	resp, err := c.Do(ctx, r)
	if err != nil {
		out.Err = err
		if c.log != nil {
			c.log.WithFields(logrus.Fields{
				"probe": r.Name,
				"url":   r.URL,
				"error": err.Error(),
			}).Debug("probe failed")
		}
		return out
	}
	out.Status = resp.StatusCode
	out.Header = resp.Header
	out.Body = resp.Body
	out.Present = match(resp)
	return out
}

// ProbeAll fans the requests out over the worker pool and returns outcomes in request order.
func (c *Client) ProbeAll(ctx context.Context, reqs []Request, match Matcher) []Outcome {
	outcomes := make([]Outcome, len(reqs))
	if len(reqs) == 0 {
		return outcomes
	}
	batch := newBatch(len(reqs))
	for i, r := range reqs {
		t := &probeTask{ctx: ctx, req: r, match: match, index: i, outcomes: outcomes, batch: batch}
		if err := c.pool.Submit(t); err != nil {
			outcomes[i] = Outcome{Name: r.Name, URL: r.URL, Err: err}
			batch.Done()
		}
	}
	batch.Wait()
	return outcomes
}
