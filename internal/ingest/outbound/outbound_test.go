package outbound

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/shandysiswandi/gostage/internal/ingest/entity"
)

type bytesContent []byte

type nopSeekCloser struct{ *bytes.Reader }

func (nopSeekCloser) Close() error { return nil }

func (b bytesContent) Open() (io.ReadSeekCloser, error) {
	return nopSeekCloser{bytes.NewReader(b)}, nil
}

type progressLog struct {
	mu  sync.Mutex
	pct []float64
}

func (p *progressLog) report(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pct = append(p.pct, v)
}

func (p *progressLog) last() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pct) == 0 {
		return -1
	}
	return p.pct[len(p.pct)-1]
}

func newClient(t *testing.T, h http.Handler) *HTTPClient {
	t.Helper()

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := NewHTTPClient(HTTPConfig{BaseURL: srv.URL + "/api/"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestNewHTTPClientRejectsScheme(t *testing.T) {
	t.Parallel()

	if _, err := NewHTTPClient(HTTPConfig{BaseURL: "ftp://example.com"}); err == nil {
		t.Fatal("expected scheme error")
	}
}

func TestFindMatch(t *testing.T) {
	t.Parallel()

	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.EscapedPath() {
		case "/api/findregex/sales%202024.csv":
			_, _ = io.WriteString(w, `{"dataset":"sales","table":"orders"}`)
		case "/api/findregex/unknown.csv":
			_, _ = io.WriteString(w, `null`)
		default:
			http.Error(w, "no pattern", http.StatusNotFound)
		}
	}))

	got, err := c.FindMatch(context.Background(), "sales 2024.csv")
	if err != nil {
		t.Fatalf("find match: %v", err)
	}
	if got == nil || *got.Dataset != "sales" || *got.Table != "orders" || got.WriteMode != nil {
		t.Fatalf("unexpected guess: %+v", got)
	}

	got, err = c.FindMatch(context.Background(), "unknown.csv")
	if err != nil || got != nil {
		t.Fatalf("expected nil guess for null body, got %+v, %v", got, err)
	}

	got, err = c.FindMatch(context.Background(), "events.csv")
	if err != nil || got != nil {
		t.Fatalf("expected nil guess for 404, got %+v, %v", got, err)
	}
}

func TestDatasetsStatusError(t *testing.T) {
	t.Parallel()

	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "catalog down", http.StatusBadGateway)
	}))

	_, err := c.Datasets(context.Background())
	var serr *StatusError
	if !errors.As(err, &serr) || serr.Code != http.StatusBadGateway || serr.Body != "catalog down" {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestDetectSchemaSendsFilePart(t *testing.T) {
	t.Parallel()

	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/detect-schema" {
			http.NotFound(w, r)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		raw, _ := io.ReadAll(file)
		if header.Filename != "a.csv" || string(raw) != "id,name\n1,x\n" {
			http.Error(w, "bad file", http.StatusBadRequest)
			return
		}
		_, _ = io.WriteString(w, `{"columns":[{"name":"id","type":"INTEGER","nullable":false,"isPrimaryKey":true}]}`)
	}))

	schema, err := c.DetectSchema(context.Background(), "a.csv", bytesContent("id,name\n1,x\n"))
	if err != nil {
		t.Fatalf("detect schema: %v", err)
	}
	if len(schema.Columns) != 1 || !schema.Columns[0].IsPrimaryKey || schema.Columns[0].Type != entity.ColumnTypeInteger {
		t.Fatalf("unexpected schema: %+v", schema)
	}
}

func TestUploadSendsFileAndMetadata(t *testing.T) {
	t.Parallel()

	payload := strings.Repeat("x", 64*1024)
	var gotMeta entity.Metadata
	var gotAccept string

	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/upload/a.csv" {
			http.NotFound(w, r)
			return
		}
		gotAccept = r.Header.Get("Accept")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		raw, _ := io.ReadAll(file)
		if len(raw) != len(payload) {
			http.Error(w, "short file", http.StatusBadRequest)
			return
		}
		if err := json.Unmarshal([]byte(r.FormValue("metadata")), &gotMeta); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))

	progress := &progressLog{}
	err := c.Upload(context.Background(), entity.UploadRequest{
		Name:      "a.csv",
		Size:      int64(len(payload)),
		Content:   bytesContent(payload),
		Dataset:   "sales",
		Table:     "orders",
		WriteMode: entity.WriteModeAppend,
		Schema:    &entity.Schema{Columns: []entity.Column{{Name: "id", Type: entity.ColumnTypeInteger}}},
	}, progress.report)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	if gotMeta.Dataset == nil || *gotMeta.Dataset != "sales" || *gotMeta.WriteMode != entity.WriteModeAppend {
		t.Fatalf("unexpected metadata: %+v", gotMeta)
	}
	if gotMeta.Schema == nil || gotMeta.Schema.Columns[0].Name != "id" {
		t.Fatalf("schema not sent: %+v", gotMeta.Schema)
	}
	if gotAccept != "application/json" {
		t.Fatalf("unexpected accept header %q", gotAccept)
	}
	if progress.last() != 100 {
		t.Fatalf("expected final progress 100, got %v", progress.last())
	}
}

func TestUploadRejected(t *testing.T) {
	t.Parallel()

	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		http.Error(w, "table locked", http.StatusConflict)
	}))

	err := c.Upload(context.Background(), entity.UploadRequest{
		Name:      "b.csv",
		Content:   bytesContent("1,2\n"),
		Dataset:   "sales",
		Table:     "orders",
		WriteMode: entity.WriteModeMerge,
	}, nil)

	var serr *StatusError
	if !errors.As(err, &serr) || serr.Code != http.StatusConflict {
		t.Fatalf("expected 409 status error, got %v", err)
	}
}

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakePutter) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = in
	raw, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.body = raw
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestS3UploadKeyMetadataAndProgress(t *testing.T) {
	t.Parallel()

	putter := &fakePutter{}
	u := &S3Uploader{cfg: S3Config{Bucket: "landing", Prefix: "/staging/"}, client: putter}

	progress := &progressLog{}
	err := u.Upload(context.Background(), entity.UploadRequest{
		Name:      "sales_2024.csv",
		Content:   bytesContent("id\n1\n2\n"),
		Dataset:   "sales",
		Table:     "orders",
		WriteMode: entity.WriteModeOverwrite,
		Schema:    &entity.Schema{Columns: []entity.Column{{Name: "id", Type: entity.ColumnTypeInteger}}},
	}, progress.report)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	if got := aws.ToString(putter.input.Key); got != "staging/sales/orders/sales_2024.csv" {
		t.Fatalf("unexpected key %q", got)
	}
	if aws.ToString(putter.input.Bucket) != "landing" || aws.ToInt64(putter.input.ContentLength) != 7 {
		t.Fatalf("unexpected input: %+v", putter.input)
	}
	if putter.input.Metadata["write-mode"] != "Overwrite" || !strings.Contains(putter.input.Metadata["schema"], `"name":"id"`) {
		t.Fatalf("unexpected metadata: %v", putter.input.Metadata)
	}
	if string(putter.body) != "id\n1\n2\n" || progress.last() != 100 {
		t.Fatalf("body %q, progress %v", putter.body, progress.last())
	}
}

func TestS3UploadError(t *testing.T) {
	t.Parallel()

	u := &S3Uploader{cfg: S3Config{Bucket: "landing"}, client: &fakePutter{err: errors.New("access denied")}}
	err := u.Upload(context.Background(), entity.UploadRequest{
		Name:      "a.csv",
		Content:   bytesContent("x"),
		Dataset:   "d",
		Table:     "t",
		WriteMode: entity.WriteModeAppend,
	}, nil)
	if err == nil || !strings.Contains(err.Error(), "landing/d/t/a.csv") {
		t.Fatalf("expected wrapped put error, got %v", err)
	}
}

func TestNewS3UploaderRequiresBucket(t *testing.T) {
	t.Parallel()

	if _, err := NewS3Uploader(context.Background(), S3Config{Region: "us-east-1"}); err == nil {
		t.Fatal("expected bucket error")
	}
}

func TestProgressReadSeekerKeepsFurthestOffset(t *testing.T) {
	t.Parallel()

	progress := &progressLog{}
	rs := newProgressReadSeeker(bytes.NewReader([]byte("abcd")), 4, progress.report)

	buf := make([]byte, 2)
	_, _ = rs.Read(buf)
	if progress.last() != 50 {
		t.Fatalf("expected 50 after two bytes, got %v", progress.last())
	}
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		t.Fatalf("seek: %v", err)
	}
	_, _ = rs.Read(buf[:1])
	if progress.last() != 50 {
		t.Fatalf("rewind moved progress to %v", progress.last())
	}

	rest, _ := io.ReadAll(rs)
	if string(rest) != "bcd" || progress.last() != 100 {
		t.Fatalf("read %q, progress %v", rest, progress.last())
	}
}
