package scrape

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
	"github.com/thanos-io/thanos/pkg/runutil"
	"golang.org/x/time/rate"
)

const DefaultInterval = 2 * time.Second

// DefaultBaseURLs are the federal reporter roots of the static case.law mirror.
var DefaultBaseURLs = []string{
	"https://static.case.law/f/",
	"https://static.case.law/f2d/",
	"https://static.case.law/f3d/",
	"https://static.case.law/f-appx/",
}

type Stats struct {
	Links   int
	Written int
	Failed  int
}

type Option func(*Scraper)

func WithHTTPClient(client *http.Client) Option {
	return func(s *Scraper) {
		s.client = client
	}
}

// WithInterval sets the minimum delay between two case fetches. Zero disables pacing.
func WithInterval(d time.Duration) Option {
	return func(s *Scraper) {
		if d <= 0 {
			s.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		s.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

type Scraper struct {
	client  *http.Client
	limiter *rate.Limiter
	logger  log.Logger
}

func New(logger log.Logger, opts ...Option) *Scraper {
	s := &Scraper{
		client:  &http.Client{Timeout: time.Minute},
		limiter: rate.NewLimiter(rate.Every(DefaultInterval), 1),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CaseLinks discovers the case JSON links below baseURL. Volumes whose listing fails are skipped.
func (s *Scraper) CaseLinks(ctx context.Context, baseURL string) ([]string, error) {
	links, err := s.listLinks(ctx, baseURL)
	if err != nil {
		return nil, errors.Wrapf(err, "failed listing volumes of %s", baseURL)
	}
	volumes := volumeLinks(links)
	level.Info(s.logger).Log("msg", "found volumes", "base_url", baseURL, "volumes", len(volumes))

	var cases []string
	for _, volume := range volumes {
		volumeURL, err := resolve(baseURL, volume)
		if err != nil {
			level.Warn(s.logger).Log("msg", "skipping volume", "volume", volume, "err", err)
			continue
		}
		casesURL, err := resolve(volumeURL, "cases/")
		if err != nil {
			level.Warn(s.logger).Log("msg", "skipping volume", "volume", volume, "err", err)
			continue
		}

		links, err := s.listLinks(ctx, casesURL)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			level.Warn(s.logger).Log("msg", "skipping volume", "url", casesURL, "err", err)
			continue
		}
		found := caseLinks(links)
		for _, link := range found {
			caseURL, err := resolve(casesURL, link)
			if err != nil {
				level.Warn(s.logger).Log("msg", "skipping case link", "link", link, "err", err)
				continue
			}
			cases = append(cases, caseURL)
		}
		level.Debug(s.logger).Log("msg", "found cases", "url", casesURL, "cases", len(found))
	}
	return cases, nil
}

// FetchCase downloads one case JSON and reduces it to its details.
func (s *Scraper) FetchCase(ctx context.Context, caseURL string) (CaseDetails, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return CaseDetails{}, err
	}
	body, err := s.get(ctx, caseURL)
	if err != nil {
		return CaseDetails{}, err
	}
	defer runutil.CloseWithLogOnErr(s.logger, body, "case body")

	var raw rawCase
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		return CaseDetails{}, errors.Wrapf(err, "failed decoding %s", caseURL)
	}
	return raw.details(), nil
}

// Run discovers the cases of every base URL, keeps the links with index in [start, end)
// and writes the details of each to sink. A negative end means no upper bound.
// Failed base URLs and cases are logged and skipped.
func (s *Scraper) Run(ctx context.Context, baseURLs []string, start, end int, sink Sink) (Stats, error) {
	var links []string
	for _, baseURL := range baseURLs {
		found, err := s.CaseLinks(ctx, baseURL)
		if err != nil {
			if ctx.Err() != nil {
				return Stats{}, ctx.Err()
			}
			level.Warn(s.logger).Log("msg", "skipping base url", "base_url", baseURL, "err", err)
			continue
		}
		links = append(links, found...)
	}
	if end < 0 || end > len(links) {
		end = len(links)
	}
	if start < 0 {
		start = 0
	}
	if start > end {
		start = end
	}
	links = links[start:end]

	stats := Stats{Links: len(links)}
	level.Info(s.logger).Log("msg", "fetching cases", "cases", len(links))
	for i, link := range links {
		details, err := s.FetchCase(ctx, link)
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			stats.Failed++
			level.Warn(s.logger).Log("msg", "failed processing case", "url", link, "err", err)
			continue
		}
		if err := sink.Write(details); err != nil {
			return stats, errors.Wrap(err, "failed writing case details")
		}
		stats.Written++
		level.Debug(s.logger).Log("msg", "processed case", "url", link, "n", i+1, "of", len(links))
	}
	if err := sink.Flush(); err != nil {
		return stats, errors.Wrap(err, "failed flushing case details")
	}
	return stats, nil
}

func (s *Scraper) listLinks(ctx context.Context, pageURL string) ([]string, error) {
	body, err := s.get(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	defer runutil.CloseWithLogOnErr(s.logger, body, "listing body")
	return hrefs(body)
}

func (s *Scraper) get(ctx context.Context, target string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		runutil.CloseWithLogOnErr(s.logger, resp.Body, "error response body")
		return nil, errors.Errorf("GET %s: unexpected status %s", target, resp.Status)
	}
	return resp.Body, nil
}
