// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package flow

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/intel-go/nff-classifier/common"
)

// WorkerStats are counters of one direct mode worker.
type WorkerStats struct {
	Rx      uint64 `json:"rx"`
	Tx      uint64 `json:"tx"`
	Dropped uint64 `json:"dropped"`
}

func (ws *WorkerStats) add(counter *uint64, n int) {
	if n > 0 {
		atomic.AddUint64(counter, uint64(n))
	}
}

func (ws *WorkerStats) load() WorkerStats {
	return WorkerStats{
		Rx:      atomic.LoadUint64(&ws.Rx),
		Tx:      atomic.LoadUint64(&ws.Tx),
		Dropped: atomic.LoadUint64(&ws.Dropped),
	}
}

// CoSReport are counters of one CoS.
type CoSReport struct {
	Name          string `json:"name"`
	PhysicalQueue int    `json:"physical_queue"`
	Rules         int    `json:"rules"`
	PktCount      uint64 `json:"pkt_count"`
	DropCount     uint64 `json:"drop_count"`
}

// PhysicalQueueReport are counters of one physical queue.
type PhysicalQueueReport struct {
	ID               int    `json:"id"`
	Name             string `json:"name"`
	Port             int    `json:"port"`
	NormalQueueCount uint64 `json:"normal_queue_count"`
	DroppedPackets   uint64 `json:"dropped_packets"`
}

// Report is a snapshot of system counters.
type Report struct {
	Mode           string                `json:"mode"`
	CoS            []CoSReport           `json:"cos,omitempty"`
	PhysicalQueues []PhysicalQueueReport `json:"physical_queues,omitempty"`
	Workers        []WorkerStats         `json:"workers,omitempty"`
	Unclassified   uint64                `json:"unclassified"`
	RxErrors       uint64                `json:"rx_errors"`
}

// Stats returns current counters. It can be called while system is
// running.
func (s *System) Stats() Report {
	r := Report{
		Mode:         s.cfg.Mode.String(),
		Unclassified: atomic.LoadUint64(&s.unclassified),
		RxErrors:     atomic.LoadUint64(&s.rxErrors),
	}
	for _, ws := range s.workers {
		r.Workers = append(r.Workers, ws.load())
	}
	if s.engine == nil {
		return r
	}
	for _, cos := range s.engine.AllCoS() {
		st := cos.Stats()
		r.CoS = append(r.CoS, CoSReport{
			Name:          cos.Name,
			PhysicalQueue: cos.PhysicalID,
			Rules:         len(cos.Rules),
			PktCount:      st.PktCount,
			DropCount:     st.DropCount,
		})
	}
	for _, pq := range s.engine.PhysicalQueues() {
		st := pq.Stats()
		r.PhysicalQueues = append(r.PhysicalQueues, PhysicalQueueReport{
			ID:               pq.ID,
			Name:             pq.Name,
			Port:             pq.Port,
			NormalQueueCount: st.NormalQueueCount,
			DroppedPackets:   st.DroppedPackets,
		})
	}
	return r
}

func u64(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	table.SetHeader(header)
	return table
}

// PrintReport writes counters of r as tables.
func PrintReport(w io.Writer, r Report) {
	if len(r.Workers) != 0 {
		table := newTable(w, []string{"WORKER", "RX", "TX", "DROPPED"})
		for i, ws := range r.Workers {
			table.Append([]string{strconv.Itoa(i), u64(ws.Rx), u64(ws.Tx), u64(ws.Dropped)})
		}
		table.Render()
		return
	}
	rows := make([][]string, 0, len(r.CoS))
	for _, cos := range r.CoS {
		rows = append(rows, []string{cos.Name, strconv.Itoa(cos.Rules), u64(cos.PktCount), u64(cos.DropCount)})
	}
	table := newTable(w, []string{"COS", "RULES", "PACKETS", "DROPS"})
	table.AppendBulk(rows)
	table.Render()

	table = newTable(w, []string{"QUEUE", "NAME", "PORT", "QUEUED", "DROPPED"})
	for _, pq := range r.PhysicalQueues {
		table.Append([]string{strconv.Itoa(pq.ID), pq.Name, strconv.Itoa(pq.Port),
			u64(pq.NormalQueueCount), u64(pq.DroppedPackets)})
	}
	table.SetFooter([]string{"", "", "", "UNCLASSIFIED", u64(r.Unclassified)})
	table.Render()
}

// PrintStats writes current counters to w.
func (s *System) PrintStats(w io.Writer) {
	PrintReport(w, s.Stats())
}

// statsCollector exports system counters to Prometheus on each scrape.
type statsCollector struct {
	s *System

	cosPackets    *prometheus.Desc
	cosDrops      *prometheus.Desc
	queueNormal   *prometheus.Desc
	queueDropped  *prometheus.Desc
	workerPackets *prometheus.Desc
	unclassified  *prometheus.Desc
	rxErrors      *prometheus.Desc
}

func newStatsCollector(s *System) *statsCollector {
	return &statsCollector{
		s: s,
		cosPackets: prometheus.NewDesc(
			"classifier_cos_packets_total",
			"Packets delivered to class of service.",
			[]string{"cos"}, nil,
		),
		cosDrops: prometheus.NewDesc(
			"classifier_cos_drops_total",
			"Packets dropped by class of service.",
			[]string{"cos"}, nil,
		),
		queueNormal: prometheus.NewDesc(
			"classifier_queue_enqueued_total",
			"Packets put to CoS queues of physical queue.",
			[]string{"queue", "name"}, nil,
		),
		queueDropped: prometheus.NewDesc(
			"classifier_queue_dropped_total",
			"Packets dropped on physical queue.",
			[]string{"queue", "name"}, nil,
		),
		workerPackets: prometheus.NewDesc(
			"classifier_worker_packets_total",
			"Packets handled by direct mode worker.",
			[]string{"worker", "direction"}, nil,
		),
		unclassified: prometheus.NewDesc(
			"classifier_unclassified_total",
			"Packets received from ports without physical queue.",
			nil, nil,
		),
		rxErrors: prometheus.NewDesc(
			"classifier_rx_errors_total",
			"Received packets with malformed headers.",
			nil, nil,
		),
	}
}

func (c *statsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.cosPackets
	ch <- c.cosDrops
	ch <- c.queueNormal
	ch <- c.queueDropped
	ch <- c.workerPackets
	ch <- c.unclassified
	ch <- c.rxErrors
}

func (c *statsCollector) Collect(ch chan<- prometheus.Metric) {
	r := c.s.Stats()
	for _, cos := range r.CoS {
		ch <- prometheus.MustNewConstMetric(c.cosPackets, prometheus.CounterValue, float64(cos.PktCount), cos.Name)
		ch <- prometheus.MustNewConstMetric(c.cosDrops, prometheus.CounterValue, float64(cos.DropCount), cos.Name)
	}
	for _, pq := range r.PhysicalQueues {
		id := strconv.Itoa(pq.ID)
		ch <- prometheus.MustNewConstMetric(c.queueNormal, prometheus.CounterValue, float64(pq.NormalQueueCount), id, pq.Name)
		ch <- prometheus.MustNewConstMetric(c.queueDropped, prometheus.CounterValue, float64(pq.DroppedPackets), id, pq.Name)
	}
	for i, ws := range r.Workers {
		id := strconv.Itoa(i)
		ch <- prometheus.MustNewConstMetric(c.workerPackets, prometheus.CounterValue, float64(ws.Rx), id, "rx")
		ch <- prometheus.MustNewConstMetric(c.workerPackets, prometheus.CounterValue, float64(ws.Tx), id, "tx")
		ch <- prometheus.MustNewConstMetric(c.workerPackets, prometheus.CounterValue, float64(ws.Dropped), id, "dropped")
	}
	ch <- prometheus.MustNewConstMetric(c.unclassified, prometheus.CounterValue, float64(r.Unclassified))
	ch <- prometheus.MustNewConstMetric(c.rxErrors, prometheus.CounterValue, float64(r.RxErrors))
}

func (s *System) handler(w http.ResponseWriter, r *http.Request) {
	url := strings.Split(strings.TrimSuffix(r.URL.Path, "/"), "/")
	if len(url) < 2 || url[1] == "" {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, `<html><body>
/<a href="/stats">stats</a> for counters of all classes of service, physical
queues and workers, /stats/name for individual class of service.<br>
<br>
/<a href="/metrics">metrics</a> for the same counters in Prometheus format.
</body></html>`)
		return
	}
	if url[1] != "stats" {
		http.Error(w, "Bad request: "+url[1], http.StatusBadRequest)
		return
	}

	report := s.Stats()
	enc := json.NewEncoder(w)
	if len(url) > 2 {
		name := strings.Join(url[2:], "/")
		for _, cos := range report.CoS {
			if cos.Name == name {
				w.Header().Set("Content-Type", "application/json")
				enc.Encode(cos)
				return
			}
		}
		http.Error(w, "Bad CoS name: "+name, http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	enc.Encode(report)
}

// Handler returns HTTP handler serving JSON counters at /stats and
// Prometheus metrics at /metrics.
func (s *System) Handler() http.Handler {
	registry := prometheus.NewRegistry()
	registry.MustRegister(newStatsCollector(s))
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/", s.handler)
	return mux
}

func (s *System) startServer(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return common.WrapWithNFError(err, "can't listen on "+addr, common.BadSocket)
	}
	s.server = &http.Server{Handler: s.Handler()}
	server := s.server
	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			common.LogWarning(common.Initialization, "Error while serving HTTP requests:", err)
		}
	}()
	common.LogDebug(common.Initialization, "Statistics are served at", listener.Addr())
	return nil
}
