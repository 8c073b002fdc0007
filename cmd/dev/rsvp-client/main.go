// Dev smoke client for a running gather server: fetches the guest page for
// an event, submits an RSVP, then edits it with the returned edit token.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"time"
)

var defaultClient = &http.Client{
	Transport: &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 15 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	},
}

func main() {
	var (
		base  = flag.String("base", "http://localhost:8080", "Base URL of a running gather server")
		token = flag.String("token", "", "Invitation token of the event to RSVP to")
		code  = flag.String("code", "", "Access code, for events that require one")
	)
	flag.Parse()

	if *token == "" {
		log.Fatal("missing -token: pass an event invitation token")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	eventURL := fmt.Sprintf("%s/api/events/%s", *base, *token)
	pageURL := eventURL
	if *code != "" {
		pageURL += "?access_code=" + *code
	}

	page, err := call(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		log.Fatalf("fetch event: %v", err)
	}
	var questions []any
	if sv, ok := page["survey"].(map[string]any); ok {
		questions, _ = sv["questions"].([]any)
	}
	fmt.Printf("event: %v (%d questions)\n", page["title"], len(questions))

	rsvp := map[string]any{
		"identity":      fmt.Sprintf("smoke-%d", time.Now().Unix()),
		"email":         "smoke@example.com",
		"response":      "yes",
		"num_attendees": 2,
	}
	if *code != "" {
		rsvp["access_code"] = *code
	}
	created, err := call(ctx, http.MethodPost, eventURL+"/rsvp", rsvp)
	if err != nil {
		log.Fatalf("submit rsvp: %v", err)
	}
	editToken, _ := created["edit_token"].(string)
	fmt.Printf("rsvp created: response=%v edit_token=%s\n", created["response"], editToken)

	rsvp["response"] = "maybe"
	delete(rsvp, "num_attendees")
	updated, err := call(ctx, http.MethodPut, eventURL+"/rsvp?edit_token="+editToken, rsvp)
	if err != nil {
		log.Fatalf("edit rsvp: %v", err)
	}
	fmt.Printf("rsvp updated: response=%v\n", updated["response"])

	stats, err := call(ctx, http.MethodGet, eventURL+"/stats", nil)
	if err != nil {
		log.Fatalf("fetch stats: %v", err)
	}
	fmt.Printf("stats: %+v\n", stats)
}

// call sends one JSON request and decodes the JSON response body.
func call(ctx context.Context, method, url string, body any) (map[string]any, error) {
	var payload io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		payload = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, payload)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := defaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s %s: status %d: %s", method, url, resp.StatusCode, raw)
	}

	out := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
	}
	return out, nil
}
