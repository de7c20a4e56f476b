package pagination

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "redmine_pages_fetched_total",
		Help: "Total pages fetched by paginators, by entity",
	}, []string{"entity"})

	recordsFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "redmine_records_fetched_total",
		Help: "Total records delivered by paginators, by entity",
	}, []string{"entity"})

	protocolViolationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "redmine_protocol_violations_total",
		Help: "Pages rejected because they broke the paging protocol, by entity",
	}, []string{"entity"})
)
