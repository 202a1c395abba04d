package apply

import (
	"errors"
	"strings"
	"testing"

	"github.com/patrickwarner/holepunch/internal/blocks"
	"github.com/patrickwarner/holepunch/internal/observability"
	"github.com/patrickwarner/holepunch/internal/page"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const shell = `<html><head></head><body><div id="ph_0">old</div><p id="keep">static</p></body></html>`

func parse(t *testing.T, s string) *page.HTMLDocument {
	t.Helper()
	doc, err := page.ParseString(s)
	require.NoError(t, err)
	return doc
}

func decode(t *testing.T, body string) *blocks.Response {
	t.Helper()
	resp, err := blocks.DecodeResponse(strings.NewReader(body))
	require.NoError(t, err)
	return resp
}

type recordingRunner struct {
	keys []string
	code []string
	err  error
}

func (r *recordingRunner) RunTrusted(doc page.Document, key, code string) error {
	r.keys = append(r.keys, key)
	r.code = append(r.code, code)
	return r.err
}

func TestApplyReplacesBlock(t *testing.T) {
	doc := parse(t, shell)
	a := NewApplier(&recordingRunner{}, zaptest.NewLogger(t), nil)

	res := a.Apply(doc, decode(t, `{"blocks":{"ph_0":"<b>hi</b>"},"code":{}}`))

	assert.Equal(t, Result{Applied: 1}, res)
	assert.Equal(t, "<b>hi</b>", doc.ElementByID("ph_0").InnerHTML())
}

func TestApplyWithEmptyCodeArray(t *testing.T) {
	doc := parse(t, shell)
	runner := &recordingRunner{}
	a := NewApplier(runner, zaptest.NewLogger(t), nil)

	res := a.Apply(doc, decode(t, `{"blocks":{"ph_0":"<b>hi</b>"},"code":[]}`))

	assert.Equal(t, Result{Applied: 1}, res)
	assert.Equal(t, "<b>hi</b>", doc.ElementByID("ph_0").InnerHTML())
	assert.Empty(t, runner.keys)
}

func TestApplyWithEmptyBlocksArrayStillRunsCode(t *testing.T) {
	doc := parse(t, shell)
	before := doc.ElementByID("ph_0").InnerHTML()
	runner := &recordingRunner{}
	a := NewApplier(runner, zaptest.NewLogger(t), nil)

	res := a.Apply(doc, decode(t, `{"blocks":[],"code":{"a":"x()"}}`))

	assert.Equal(t, Result{Code: 1}, res)
	assert.Equal(t, before, doc.ElementByID("ph_0").InnerHTML())
	assert.Equal(t, []string{"x()"}, runner.code)
}

func TestApplyNumericBlockRendersAsText(t *testing.T) {
	doc := parse(t, shell)
	a := NewApplier(&recordingRunner{}, zaptest.NewLogger(t), nil)

	res := a.Apply(doc, decode(t, `{"blocks":{"ph_0":7}}`))

	assert.Equal(t, Result{Applied: 1}, res)
	assert.Equal(t, "7", doc.ElementByID("ph_0").InnerHTML())
}

func TestApplyMissingIDIsNoOp(t *testing.T) {
	doc := parse(t, shell)
	before := doc.String()
	metrics := &observability.MockMetricsRegistry{}
	a := NewApplier(&recordingRunner{}, zaptest.NewLogger(t), metrics)

	res := a.Apply(doc, decode(t, `{"blocks":{"missing_id":"x"}}`))

	assert.Equal(t, Result{Missing: 1}, res)
	assert.Equal(t, before, doc.String())
	assert.Equal(t, 1, metrics.Count("blocks:missing"))
}

func TestApplyContinuesPastMissing(t *testing.T) {
	doc := parse(t, shell)
	a := NewApplier(&recordingRunner{}, zaptest.NewLogger(t), nil)

	res := a.Apply(doc, decode(t, `{"blocks":{"nope":"x","ph_0":"new","keep":"also"}}`))

	assert.Equal(t, Result{Applied: 2, Missing: 1}, res)
	assert.Equal(t, "new", doc.ElementByID("ph_0").InnerHTML())
	assert.Equal(t, "also", doc.ElementByID("keep").InnerHTML())
}

func TestApplyRunsCodeInResponseOrder(t *testing.T) {
	doc := parse(t, shell)
	runner := &recordingRunner{}
	a := NewApplier(runner, zaptest.NewLogger(t), nil)

	res := a.Apply(doc, decode(t, `{"code":{"b":"second()","a":"first()"}}`))

	assert.Equal(t, 2, res.Code)
	assert.Equal(t, []string{"b", "a"}, runner.keys)
	assert.Equal(t, []string{"second()", "first()"}, runner.code)
}

func TestApplyRunnerErrorDoesNotStopBatch(t *testing.T) {
	doc := parse(t, shell)
	metrics := &observability.MockMetricsRegistry{}
	runner := &recordingRunner{err: errors.New("nope")}
	a := NewApplier(runner, zaptest.NewLogger(t), metrics)

	res := a.Apply(doc, decode(t, `{"blocks":{"ph_0":"ok"},"code":{"a":"1","b":"2"}}`))

	assert.Equal(t, 1, res.Applied)
	assert.Equal(t, 0, res.Code)
	assert.Len(t, runner.keys, 2)
	assert.Equal(t, 2, metrics.Count("code:failed"))
}

func TestApplyNilResponse(t *testing.T) {
	doc := parse(t, shell)
	assert.Equal(t, Result{}, NewApplier(nil, nil, nil).Apply(doc, nil))
}

func TestScriptInjectorAppendsToBody(t *testing.T) {
	doc := parse(t, shell)
	a := NewApplier(nil, zaptest.NewLogger(t), nil)

	res := a.Apply(doc, decode(t, `{"code":{"track":"window.loaded = true;"}}`))

	assert.Equal(t, 1, res.Code)
	assert.True(t, strings.HasSuffix(doc.String(), `<script>window.loaded = true;</script></body></html>`))
}
