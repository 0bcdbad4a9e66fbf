/* Copyright 2024 Bosun Labs
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package sio

import (
	"bytes"
	"context"
	"encoding/json"
	"io/ioutil"
	"log"
	"net/http"
	"net/http/cookiejar"
	"net/url"

	"github.com/bosunlabs/bosun/core"

	"golang.org/x/net/publicsuffix"
)

// Jar is a cookiejar.Jar that also remembers the cookies it has seen
// so they can be reported.
type Jar struct {
	*cookiejar.Jar
	Kookies []*http.Cookie `json:"cookies"`
}

func NewJar() (*Jar, error) {
	cookieJar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	return &Jar{Jar: cookieJar}, nil
}

func (j *Jar) AddCookies(cs []*http.Cookie) {
	if j.Kookies == nil {
		j.Kookies = make([]*http.Cookie, 0, 2*len(cs))
	}
	j.Kookies = append(j.Kookies, cs...)
}

// HTTPRequest is something I should quit re-implementing over and
// over.
type HTTPRequest struct {
	Id                string      `json:"id,omitempty"`
	Method            string      `json:"method,omitempty"`
	URL               string      `json:"url"`
	Body              string      `json:"body,omitempty"`
	Headers           http.Header `json:"headers,omitempty"`
	ResponseTimeoutMS int         `json:"timeout,omitempty"`
	CookieJar         *Jar        `json:"jar,omitempty"`

	Debug bool `json:"debug,omitempty"`

	// TestResponse, if there, will be returned instead of
	// attempting a real HTTP request.
	TestResponse *HTTPResponse
}

type HTTPResponse struct {
	StatusCode  int          `json:"statusCode"`
	Status      string       `json:"status"`
	Error       error        `json:"error,omitempty"`
	Headers     http.Header  `json:"headers,omitempty"`
	Body        string       `json:"body,omitempty"`
	ContentType string       `json:"contentType,omitempty"`
	Request     *HTTPRequest `json:"request,omitempty"`

	// Parsed could be the Body parsed as (say) JSON.
	//
	// This field is not written by this code.  A caller can parse
	// the Body and write this field.
	Parsed interface{} `json:"parsed,omitempty"`
}

func (r *HTTPRequest) logf(format string, args ...interface{}) {
	if r.Debug {
		log.Printf(format, args...)
	}
}

// Do is the low-level, synchronous method to make the request and
// call the handler with the result.
func (r *HTTPRequest) Do(ctx context.Context, handler func(context.Context, *HTTPResponse) error) error {
	if r.TestResponse != nil {
		r.TestResponse.Request = r
		return handler(ctx, r.TestResponse)
	}

	url, err := url.Parse(r.URL)
	if err != nil {
		return err
	}

	req := &http.Request{
		Method: r.Method,
		URL:    url,
		Header: r.Headers,
	}

	if r.Body != "" {
		req.Body = ioutil.NopCloser(bytes.NewReader([]byte(r.Body)))
	}

	// http.Request doesn't itself support CookieJars; instead,
	// http.Client does.  http.Client includes cached TCP
	// connections, so we shouldn't create http.Clients for each
	// request.  So we use the CookieJar manually with this
	// request.

	if r.CookieJar != nil {
		if req.Header == nil {
			req.Header = make(http.Header)
		}
		for i, cookie := range r.CookieJar.Cookies(url) {
			r.logf("adding cookie %d: %#v", i, cookie)
			req.AddCookie(cookie)
		}
	}

	req = req.WithContext(ctx)

	result := &HTTPResponse{
		Request: r,
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		r.logf("HTTPRequest.Do Do error %v", err)
		result.Error = err
		return handler(ctx, result)
	}

	result.Headers = resp.Header
	result.Status = resp.Status
	result.StatusCode = resp.StatusCode

	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		r.logf("HTTPRequest.Do ReadAll error %v", err)
		result.Error = err
		return handler(ctx, result)
	}
	result.Body = string(body)

	if r.CookieJar != nil {
		r.logf("HTTPRequest.Do updating cookies")
		r.CookieJar.SetCookies(url, resp.Cookies())
		r.CookieJar.AddCookies(resp.Cookies())
	}

	if js, err := json.MarshalIndent(&result, "  ", "  "); err != nil {
		r.logf("HTTPResponse %#v", result)
	} else {
		r.logf("HTTPResponse\n%s\n", js)
	}

	return handler(ctx, result)
}

// HTTPEgress is a service that makes outbound HTTP requests on behalf
// of other services.
//
// Actions: "get", "post", and "do" (method given in params).  Params:
// "url" (required), "body", "method" (for "do"), "headers" (a map of
// string to string), "jar" (bool: use the shared cookie jar), "parse"
// (bool: parse the response body as JSON into Parsed).
type HTTPEgress struct {
	// TestResponse, if there, will be returned for every request
	// instead of performing real HTTP.
	TestResponse *HTTPResponse

	jar *Jar
}

func NewHTTPEgress() *HTTPEgress {
	return &HTTPEgress{}
}

func (e *HTTPEgress) Name() string {
	return "http"
}

func (e *HTTPEgress) Start(ctx context.Context, rt core.Runtime) error {
	jar, err := NewJar()
	if err != nil {
		return err
	}
	e.jar = jar
	return nil
}

func (e *HTTPEgress) Stop(ctx context.Context) error {
	return nil
}

func (e *HTTPEgress) HandleAction(ctx context.Context, action string, params *core.Params) (interface{}, error) {
	var method string
	switch action {
	case "get":
		method = "GET"
	case "post":
		method = "POST"
	case "do":
		method = params.GetString("method", "GET")
	default:
		return nil, &core.UnknownAction{Service: e.Name(), Action: action}
	}

	u, err := params.RequireString("url")
	if err != nil {
		return nil, err
	}

	req := &HTTPRequest{
		Method:       method,
		URL:          u,
		Body:         params.GetString("body", ""),
		Debug:        params.GetBool("debug", false),
		TestResponse: e.TestResponse,
	}

	if hs := params.GetMap("headers", nil); hs != nil {
		req.Headers = make(http.Header, len(hs))
		for k, v := range hs {
			if s, is := v.(string); is {
				req.Headers.Set(k, s)
			}
		}
	}

	if params.GetBool("jar", false) {
		req.CookieJar = e.jar
	}

	var result *HTTPResponse
	if err := req.Do(ctx, func(ctx context.Context, r *HTTPResponse) error {
		result = r
		return nil
	}); err != nil {
		return nil, err
	}

	if params.GetBool("parse", false) && result.Body != "" {
		var parsed interface{}
		if err := json.Unmarshal([]byte(result.Body), &parsed); err == nil {
			result.Parsed = parsed
		}
	}

	return result, nil
}
