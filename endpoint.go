package mtc

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/ioutil"
	"net/http"
	"strings"
	"time"
)

const EndpointDefaultTimeout = 10

type Endpoint struct {
	Url                string
	Method             string
	Body               string
	Headers            []Header
	AllowedStatusCodes []int
	HttpClient         *http.Client
	Timeout            int
}

type Header struct {
	Name  string
	Value string
}

func NewJsonPostEndpoint(url string, body string) *Endpoint {
	endpoint := new(Endpoint)
	endpoint.Url = url
	endpoint.Method = "POST"
	endpoint.Body = body
	endpoint.Timeout = EndpointDefaultTimeout
	endpoint.Headers = []Header{
		Header{
			Name:  "Content-Type",
			Value: "application/json",
		},
		Header{
			Name:  "Accept",
			Value: "application/json",
		},
	}

	return endpoint
}

const FetchCacheDefaultTTL = 120

func (endpoint *Endpoint) GenerateCacheKey(name string) string {
	return endpoint.GenerateCacheKeyWithTTL(name, FetchCacheDefaultTTL)
}

func (endpoint *Endpoint) GenerateCacheKeyWithTTL(name string, ttl int64) string {
	if endpoint.Method == "GET" {
		return fmt.Sprintf("%s|%d", endpoint.Url, ttl)
	} else if endpoint.Method == "POST" {
		hash := sha256.Sum256([]byte(endpoint.Body))
		hashString := hex.EncodeToString(hash[:])
		return fmt.Sprintf("%s|%s|%d", endpoint.Url, hashString, ttl)
	} else {
		return ""
	}
}

func (endpoint *Endpoint) FetchCached(name string) (body []byte, cacheMiss bool, err error) {
	return endpoint.FetchCachedWithTTL(name, FetchCacheDefaultTTL)
}

func (endpoint *Endpoint) FetchCachedWithTTL(name string, ttl int64) (body []byte, cacheMiss bool, err error) {
	key := endpoint.GenerateCacheKeyWithTTL(name, ttl)
	if len(key) == 0 {
		body, err := endpoint.Fetch(name)
		return body, true, err
	}

	body, ok := Cache.GetOrLock(key).([]byte)

	if !ok || body == nil {
		defer Cache.Unlock(key)
		body, err := endpoint.Fetch(name)
		if err != nil {
			return body, true, err
		}
		Cache.Put(key, body, ttl)

		return body, true, nil
	}

	return body, false, nil
}

func (endpoint *Endpoint) Fetch(name string) ([]byte, error) {
	var resp *http.Response
	var err error

	if endpoint.Method != "POST" && endpoint.Method != "GET" {
		return nil, fmt.Errorf("Unknown method: %s", endpoint.Method)
	}

	client := endpoint.HttpClient
	if client == nil {
		timeout := endpoint.Timeout
		if timeout <= 0 {
			timeout = EndpointDefaultTimeout
		}

		client = &http.Client{
			Timeout: time.Duration(timeout) * time.Second,
			Transport: &http.Transport{
				DisableKeepAlives: false,
			},
		}
	}

	req, err := http.NewRequest(endpoint.Method, endpoint.Url, strings.NewReader(endpoint.Body))
	if err != nil {
		return nil, err
	}

	for _, header := range endpoint.Headers {
		req.Header.Add(header.Name, header.Value)
	}

	resp, err = client.Do(req)
	if err != nil {
		Log.Debugf("WARNING: Error during fetch: %v", err)
		return nil, err
	}

	if resp.Body != nil {
		defer resp.Body.Close()
	}

	gzipContent := false
	for headerKey, headerVals := range resp.Header {
		if strings.ToLower(headerKey) == "content-encoding" {
			if strings.ToLower(headerVals[0]) == "gzip" {
				gzipContent = true
			}
		}
	}

	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if gzipContent {
		Log.Debug("Decompressing gzipped content...")

		gzReader, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}

		body, err = ioutil.ReadAll(gzReader)
		if err != nil {
			return nil, err
		}
	}

	Log.Debugf("%s: fetched %d bytes with status code %d from %s", name, len(body), resp.StatusCode, endpoint.Url)

	if resp.StatusCode != 200 {
		allowed := false
		for _, code := range endpoint.AllowedStatusCodes {
			if resp.StatusCode == code {
				allowed = true
			}
		}

		if !allowed {
			snippet := body
			if len(snippet) > 128 {
				snippet = snippet[:128]
			}
			Log.Warnf("%s: Status code: %d, %s", name, resp.StatusCode, string(snippet))
			return body, fmt.Errorf("Status code: %d", resp.StatusCode)
		}
	}

	return body, nil
}
