package xmlpost

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hl7tools/internal/ui"
)

const order = `<order id="1"><patient><id>123</id><name>DOE</name></patient><item code="A">1</item><item code="B">2</item></order>`

func parseDoc(t *testing.T, s string) *etree.Document {
	t.Helper()
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(s))
	return doc
}

func TestParseOverride(t *testing.T) {
	o, err := ParseOverride("./order/patient/id=456")
	require.NoError(t, err)
	assert.Equal(t, Override{Path: "./order/patient/id", Value: "456"}, o)

	o, err = ParseOverride("//item[@code='B']=9")
	require.NoError(t, err)
	assert.Equal(t, Override{Path: "//item[@code='B']", Value: "9"}, o)

	for _, bad := range []string{"novalue", "=x"} {
		_, err := ParseOverride(bad)
		assert.ErrorIs(t, err, ErrMalformedOverride, bad)
	}
}

func TestRewriteText(t *testing.T) {
	doc := parseDoc(t, order)
	require.NoError(t, Rewrite(doc, []Override{
		{Path: "./order/patient/id", Value: "456"},
		{Path: "//item", Value: "0"},
		{Path: "//item[@code='B']", Value: "7"},
	}))

	assert.Equal(t, "456", doc.FindElement("./order/patient/id").Text())
	items := doc.FindElements("//item")
	require.Len(t, items, 2)
	assert.Equal(t, "0", items[0].Text())
	assert.Equal(t, "7", items[1].Text())
}

func TestRewriteAttribute(t *testing.T) {
	doc := parseDoc(t, order)
	require.NoError(t, Rewrite(doc, []Override{
		{Path: "./order/@id", Value: "2"},
		{Path: "//patient/@source", Value: "test"},
	}))

	assert.Equal(t, "2", doc.Root().SelectAttrValue("id", ""))
	assert.Equal(t, "test", doc.FindElement("//patient").SelectAttrValue("source", ""))
}

func TestRewriteNotFound(t *testing.T) {
	doc := parseDoc(t, order)
	err := Rewrite(doc, []Override{{Path: "//missing", Value: "x"}})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRewriteInvalidPath(t *testing.T) {
	doc := parseDoc(t, order)
	err := Rewrite(doc, []Override{{Path: "//item[", Value: "x"}})
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestBatchPosts(t *testing.T) {
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/xml", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(b))
		_, _ = w.Write([]byte("<ok/>"))
	}))
	defer srv.Close()

	file := writeFile(t, "order.xml", order)
	poster := NewPoster(PosterConfig{URL: srv.URL, ContentType: "text/xml", Headers: map[string]string{"X-Api-Key": "secret"}})

	var out bytes.Buffer
	batch := NewBatch(poster, ui.NewPrinter(&out, true), nil)
	err := batch.Run(context.Background(), []string{file, file}, Options{
		Overrides:    []Override{{Path: "//patient/id", Value: "999"}},
		ShowResponse: true,
	})
	require.NoError(t, err)

	require.Len(t, bodies, 2)
	assert.Contains(t, bodies[0], "<id>999</id>")
	assert.Contains(t, out.String(), "✅ order - 200 OK")
	assert.Contains(t, out.String(), "← <ok/>")
}

func TestBatchStopsOnHTTPError(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	file := writeFile(t, "order.xml", order)
	var out bytes.Buffer
	err := NewBatch(NewPoster(PosterConfig{URL: srv.URL}), ui.NewPrinter(&out, true), nil).
		Run(context.Background(), []string{file, file}, Options{})
	assert.ErrorIs(t, err, ErrHTTPStatus)
	assert.Equal(t, 1, calls)
	assert.Contains(t, out.String(), "❌ order")
}

func TestBatchNoSend(t *testing.T) {
	file := writeFile(t, "order.xml", order)
	var out bytes.Buffer

	err := NewBatch(nil, ui.NewPrinter(&out, true), nil).Run(context.Background(), []string{file}, Options{
		NoSend:    true,
		Overrides: []Override{{Path: "//name", Value: "ROE"}},
	})
	assert.ErrorIs(t, err, ErrNotSent)
	assert.Contains(t, out.String(), "<name>ROE</name>")
	assert.Contains(t, out.String(), "not sent")
}

func TestBatchMissingFile(t *testing.T) {
	err := NewBatch(nil, ui.NewPrinter(io.Discard, true), nil).
		Run(context.Background(), []string{filepath.Join(t.TempDir(), "nope.xml")}, Options{NoSend: true})
	assert.ErrorIs(t, err, os.ErrNotExist)
}
