package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Snapshot is the device state reported at scrape time.
type Snapshot struct {
	StorageKeys   int64
	StorageBytes  int64
	ACLIdentities int
	ACLVersion    uint64
	SecurityOn    bool
}

// Collector reports device state by calling a snapshot function on
// every scrape.
type Collector struct {
	snapshot func() Snapshot

	storageKeys   *prometheus.Desc
	storageBytes  *prometheus.Desc
	aclIdentities *prometheus.Desc
	aclVersion    *prometheus.Desc
	securityOn    *prometheus.Desc
}

// NewCollector creates a collector backed by snapshot.
func NewCollector(snapshot func() Snapshot) *Collector {
	return &Collector{
		snapshot: snapshot,
		storageKeys: prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "device", "keys"),
			"Keys stored on the device.", nil, nil),
		storageBytes: prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "device", "bytes"),
			"Bytes stored on the device.", nil, nil),
		aclIdentities: prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "acl", "identities"),
			"Identities in the published ACL table.", nil, nil),
		aclVersion: prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "acl", "version"),
			"Version of the published ACL table.", nil, nil),
		securityOn: prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "acl", "enforced"),
			"1 when requests are checked against an ACL table.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.storageKeys
	ch <- c.storageBytes
	ch <- c.aclIdentities
	ch <- c.aclVersion
	ch <- c.securityOn
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.snapshot()

	enforced := 0.0
	if s.SecurityOn {
		enforced = 1
	}
	ch <- prometheus.MustNewConstMetric(c.storageKeys, prometheus.GaugeValue, float64(s.StorageKeys))
	ch <- prometheus.MustNewConstMetric(c.storageBytes, prometheus.GaugeValue, float64(s.StorageBytes))
	ch <- prometheus.MustNewConstMetric(c.aclIdentities, prometheus.GaugeValue, float64(s.ACLIdentities))
	ch <- prometheus.MustNewConstMetric(c.aclVersion, prometheus.GaugeValue, float64(s.ACLVersion))
	ch <- prometheus.MustNewConstMetric(c.securityOn, prometheus.GaugeValue, enforced)
}
