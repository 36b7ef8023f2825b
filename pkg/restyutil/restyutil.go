package restyutil

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/go-resty/resty/v2"
)

// InstrumentOutput receives a formatted dump of each http exchange.
type InstrumentOutput interface {
	Write(id string, contents string)
}

type FilesystemOutput struct {
	directory string
}

// NewFilesystemOutput clears out `dir` and writes every exchange into it as
// its own file.
func NewFilesystemOutput(dir string) (FilesystemOutput, error) {
	err := os.RemoveAll(dir)
	if err != nil {
		return FilesystemOutput{}, err
	}
	err = os.MkdirAll(dir, 0777)
	if err != nil {
		return FilesystemOutput{}, err
	}
	return FilesystemOutput{directory: dir}, nil
}

func (o FilesystemOutput) Write(id string, contents string) {
	err := os.WriteFile(filepath.Join(o.directory, id), []byte(contents), 0600)
	if err != nil {
		slog.Warn("failed to write message info file", "id", id, "err", err)
	}
}

type messageIdKeyType int

var messageIdKey messageIdKeyType

type instrumentCtx struct {
	output    InstrumentOutput
	idcounter *uint64
}

// InstrumentClient dumps every request and its response to `output`,
// it is a no-op when output is nil.
func InstrumentClient(client *resty.Client, output InstrumentOutput) {
	if output == nil {
		return
	}

	var idcounter uint64
	i := instrumentCtx{output: output, idcounter: &idcounter}
	client.OnBeforeRequest(i.onBeforeRequest)
	client.OnAfterResponse(i.onAfterResponse)
}

func (i instrumentCtx) onBeforeRequest(_ *resty.Client, req *resty.Request) error {
	id := atomic.AddUint64(i.idcounter, 1)
	req.SetContext(context.WithValue(req.Context(), messageIdKey, id))
	return nil
}

func (i instrumentCtx) onAfterResponse(_ *resty.Client, res *resty.Response) error {
	id, ok := res.Request.Context().Value(messageIdKey).(uint64)
	if !ok {
		return nil
	}
	name := fmt.Sprintf("%04d_%s.txt", id, strings.ToLower(res.Request.Method))
	i.output.Write(name, FormatHttpMessage(res))
	return nil
}

func formatHeaders(headers http.Header) string {
	var out strings.Builder
	for k, vals := range headers {
		for _, v := range vals {
			out.WriteString(fmt.Sprintf("%s: %s\n", k, v))
		}
	}
	return strings.TrimSuffix(out.String(), "\n")
}

func formatRequestBody(req *http.Request) string {
	if req == nil || req.GetBody == nil {
		return "<NO BODY AVAILABLE>"
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Sprintf("failed to get request body: %s", err.Error())
	}
	readBody, err := io.ReadAll(body)
	if err != nil {
		return fmt.Sprintf("failed to read request body: %s", err.Error())
	}
	return string(readBody)
}

// 1: request method
// 2: request url
// 3: request headers in ("Key: Value" format)
// 4: request body
// 5: response status
// 6: response url
// 7: response headers in ("Key: Value" format)
// 8: response body
const messageInfoTemplate = `---- REQUEST ----

%s %s

%s

%s

---- RESPONSE ----

%s %s

%s

%s`

// FormatHttpMessage renders a request and its response as plain text.
func FormatHttpMessage(res *resty.Response) string {
	var requestHeaders string
	if res.Request.RawRequest != nil {
		requestHeaders = formatHeaders(res.Request.RawRequest.Header)
	}
	responseHeaders := formatHeaders(res.Header())

	responseUrl := res.Request.URL
	if res.RawResponse != nil {
		redirected, err := res.RawResponse.Location()
		if err == nil {
			responseUrl = redirected.String()
		}
	}

	return fmt.Sprintf(
		messageInfoTemplate,

		res.Request.Method, res.Request.URL,
		requestHeaders,
		formatRequestBody(res.Request.RawRequest),

		strconv.Itoa(res.StatusCode()), responseUrl,
		responseHeaders,
		res.String(),
	)
}
