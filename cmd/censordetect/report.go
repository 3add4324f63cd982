// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/rbmk-project/censordetect/detector"
	"github.com/rbmk-project/censordetect/model"
)

// fetchResult is the result of fetching a user URL.
type fetchResult struct {
	URL      string `json:"url"`
	ErrClass string `json:"errClass,omitempty"`
}

// hostReport contains what we know about a host.
type hostReport struct {
	Host       string        `json:"host"`
	Fetches    []fetchResult `json:"fetches"`
	Techniques []string      `json:"techniques"`
	Errors     []string      `json:"errors,omitempty"`
}

// report is a [detector.Observer] indexing detected techniques by host.
type report struct {
	hosts map[string]*hostReport
	mu    sync.Mutex
}

var _ detector.Observer = &report{}

func newReport() *report {
	return &report{hosts: map[string]*hostReport{}}
}

// hostLocked returns the entry for host, creating it if needed.
func (r *report) hostLocked(host string) *hostReport {
	entry, found := r.hosts[host]
	if !found {
		entry = &hostReport{Host: host, Fetches: []fetchResult{}, Techniques: []string{}}
		r.hosts[host] = entry
	}
	return entry
}

// addFetch records the outcome of fetching URL.
func (r *report) addFetch(URL, errClass string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry := r.hostLocked(model.HostOf(URL))
	entry.Fetches = append(entry.Fetches, fetchResult{URL: URL, ErrClass: errClass})
}

// OnEvent implements [detector.Observer].
func (r *report) OnEvent(ev *detector.Event) {
	switch ev.Type {
	case detector.EventCheckFailed:
		if ev.Err != nil {
			r.mu.Lock()
			entry := r.hostLocked(ev.Host)
			entry.Errors = append(entry.Errors, fmt.Sprintf("%s: %s", ev.Check.Name, ev.Err.Error()))
			r.mu.Unlock()
		}
	case detector.EventChecksEnded:
		r.mu.Lock()
		entry := r.hostLocked(ev.Host)
		for _, meta := range ev.Successes {
			entry.Techniques = append(entry.Techniques, meta.Name)
		}
		r.mu.Unlock()
	}
}

// sorted returns the host reports sorted by host.
func (r *report) sorted() []*hostReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*hostReport
	for _, host := range slices.Sorted(maps.Keys(r.hosts)) {
		out = append(out, r.hosts[host])
	}
	return out
}

// write writes the report as JSON or as a table.
func (r *report) write(w io.Writer, asJSON bool) error {
	hosts := r.sorted()
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(hosts)
	}
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "HOST\tSTATUS\tTECHNIQUES")
	for _, entry := range hosts {
		status := "reachable"
		for _, fetch := range entry.Fetches {
			if fetch.ErrClass != "" {
				status = fetch.ErrClass
				break
			}
		}
		techniques := strings.Join(entry.Techniques, ", ")
		if techniques == "" {
			techniques = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", entry.Host, status, techniques)
	}
	return tw.Flush()
}
