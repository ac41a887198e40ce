package outbound

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shandysiswandi/gostage/internal/ingest/entity"
	"github.com/shandysiswandi/gostage/internal/pkg/pkgtrace"
)

const maxErrorBody = 512

// StatusError is returned when a collaborator answers with a non-2xx status.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Code)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

type HTTPConfig struct {
	BaseURL string
	// Timeout bounds calls that do not stream file bytes.
	Timeout time.Duration
	// UploadTimeout bounds schema detection and upload calls; zero means no
	// limit.
	UploadTimeout time.Duration
	Client        *http.Client
}

// HTTPClient talks to the metadata-matching, catalog, schema detection and
// upload endpoints of the storage service.
type HTTPClient struct {
	base          *url.URL
	client        *http.Client
	timeout       time.Duration
	uploadTimeout time.Duration
}

func NewHTTPClient(cfg HTTPConfig) (*HTTPClient, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme: %q", base.Scheme)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}

	return &HTTPClient{
		base:          base,
		client:        client,
		timeout:       timeout,
		uploadTimeout: cfg.UploadTimeout,
	}, nil
}

func (c *HTTPClient) endpoint(segments ...string) string {
	u := *c.base
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	u.Path = strings.TrimRight(c.base.Path, "/") + "/" + strings.Join(segments, "/")
	u.RawPath = strings.TrimRight(c.base.EscapedPath(), "/") + "/" + strings.Join(escaped, "/")
	return u.String()
}

// FindMatch returns the guessed metadata for filename. A non-2xx answer means
// no guess.
func (c *HTTPClient) FindMatch(ctx context.Context, filename string) (*entity.PartialMetadata, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var out *entity.PartialMetadata
	err := c.getJSON(ctx, c.endpoint("findregex", filename), &out)
	var serr *StatusError
	if errors.As(err, &serr) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) Datasets(ctx context.Context) ([]entity.Dataset, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var out []entity.Dataset
	if err := c.getJSON(ctx, c.endpoint("datasets"), &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []entity.Dataset{}
	}
	return out, nil
}

// DetectSchema streams the file to the detection endpoint.
func (c *HTTPClient) DetectSchema(ctx context.Context, name string, content entity.Content) (*entity.Schema, error) {
	ctx, cancel := c.streamContext(ctx)
	defer cancel()

	if content == nil {
		return nil, errors.New("file has no content")
	}

	body, err := content.Open()
	if err != nil {
		return nil, fmt.Errorf("open content: %w", err)
	}
	defer body.Close()

	stream := newMultipartStream(func(mw *multipart.Writer) error {
		return writeFilePart(mw, name, body)
	})
	defer stream.Close()

	var out entity.Schema
	if err := c.do(ctx, http.MethodPost, c.endpoint("detect-schema"), stream, stream.contentType, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Upload posts the file and its metadata as one multipart request. Progress
// is the share of file bytes handed to the transport.
func (c *HTTPClient) Upload(ctx context.Context, req entity.UploadRequest, onProgress func(pct float64)) error {
	ctx, cancel := c.streamContext(ctx)
	defer cancel()

	if req.Content == nil {
		return errors.New("file has no content")
	}

	meta, err := json.Marshal(entity.Metadata{
		Dataset:   &req.Dataset,
		Table:     &req.Table,
		WriteMode: &req.WriteMode,
		Schema:    req.Schema,
	})
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	body, err := req.Content.Open()
	if err != nil {
		return fmt.Errorf("open content: %w", err)
	}
	defer body.Close()

	total, err := contentSize(body, req.Size)
	if err != nil {
		return err
	}

	stream := newMultipartStream(func(mw *multipart.Writer) error {
		progress := &progressReader{r: body, total: total, report: onProgress}
		if err := writeFilePart(mw, req.Name, progress); err != nil {
			return err
		}
		return mw.WriteField("metadata", string(meta))
	})
	defer stream.Close()

	return c.do(ctx, http.MethodPost, c.endpoint("upload", req.Name), stream, stream.contentType, nil)
}

func (c *HTTPClient) streamContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.uploadTimeout > 0 {
		return context.WithTimeout(ctx, c.uploadTimeout)
	}
	return context.WithCancel(ctx)
}

func writeFilePart(mw *multipart.Writer, name string, r io.Reader) error {
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, r)
	return err
}

// multipartStream produces a multipart body on a goroutine while the
// transport reads it.
type multipartStream struct {
	pr          *io.PipeReader
	done        chan struct{}
	contentType string
}

func newMultipartStream(write func(mw *multipart.Writer) error) *multipartStream {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	s := &multipartStream{pr: pr, done: make(chan struct{}), contentType: mw.FormDataContentType()}

	go func() {
		defer close(s.done)
		err := write(mw)
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	return s
}

func (s *multipartStream) Read(p []byte) (int, error) {
	return s.pr.Read(p)
}

// Close stops the writer and waits for it to return.
func (s *multipartStream) Close() error {
	err := s.pr.Close()
	<-s.done
	return err
}

func (c *HTTPClient) getJSON(ctx context.Context, endpoint string, out any) error {
	return c.do(ctx, http.MethodGet, endpoint, nil, "", out)
}

func (c *HTTPClient) do(ctx context.Context, method, endpoint string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	pkgtrace.Inject(ctx, req.Header)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{
			Method: method,
			Path:   req.URL.Path,
			Code:   resp.StatusCode,
			Body:   strings.TrimSpace(string(snippet)),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}
