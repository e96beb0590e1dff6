package main

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// InfluxDBExporter collects metrics from an axis server and pushes them to
// InfluxDB using the v2 line protocol.
type InfluxDBExporter struct {
	targetAddress string
	organization  string
	bucket        string
	tokenHeader   string
	instance      string
	scraper       *Scraper
}

// NewInfluxDBExporter returns an initialized InfluxDB exporter.
func NewInfluxDBExporter(pushBaseAddress, organization, bucket, token, instance string,
	scraper *Scraper) *InfluxDBExporter {

	return &InfluxDBExporter{
		targetAddress: formPushTargetAddress(pushBaseAddress, organization, bucket),
		organization:  organization,
		bucket:        bucket,
		tokenHeader:   "Token " + token,
		instance:      instance,
		scraper:       scraper,
	}
}

// Push scrapes metrics from the axis server and pushes them to InfluxDB.
// Returns the HTTP status of the push request.
func (e *InfluxDBExporter) Push() (string, error) {
	metrics, err := e.scraper.CollectRaw()
	if err != nil {
		return "", err
	}
	b := new(bytes.Buffer)
	ts := time.Now().UnixNano()
	for k, v := range metrics {
		fmt.Fprintf(b, "%s,instance=%s value=%f %d\n", k, e.instance, v, ts)
	}
	req, err := http.NewRequest(http.MethodPost, e.targetAddress, b)
	if err != nil {
		return "", err
	}
	req.Header.Add("Authorization", e.tokenHeader)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var body string
		if rb, err := io.ReadAll(resp.Body); err != nil {
			body = err.Error()
		} else {
			body = strings.TrimSpace(string(rb))
		}

		return resp.Status, fmt.Errorf("HTTP %s: %s", resp.Status, body)
	}
	return resp.Status, nil
}

// Push URL format: /api/v2/write?org=organization&bucket=bucket
func formPushTargetAddress(baseAddr, organization, bucket string) string {
	url, err := url.ParseRequestURI(baseAddr)
	if err != nil {
		log.Fatal("Invalid push_addr", err)
	}
	q := url.Query()
	q.Add("org", organization)
	q.Add("bucket", bucket)
	url.RawQuery = q.Encode()
	return url.String()
}
