// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package analysis

import (
	"sort"

	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/jeranaias/linesight/internal/model"
)

// Clustering limits.
const (
	// MaxComponents caps the PCA dimensionality reduction.
	MaxComponents = 20

	// MaxClusters caps the number of k-means clusters.
	MaxClusters = 5
)

// notedLog is one record eligible for clustering: it has a note and an
// embedding vector.
type notedLog struct {
	embedding []float64
	minutes   float64
	note      string
}

// indexedObservation carries its source index through the k-means partition
// so cluster members can be mapped back to their logs.
type indexedObservation struct {
	idx    int
	coords clusters.Coordinates
}

func (o indexedObservation) Coordinates() clusters.Coordinates {
	return o.coords
}

func (o indexedObservation) Distance(point clusters.Coordinates) float64 {
	return o.coords.Distance(point)
}

// clusterCauses groups noted records by embedding similarity and aggregates
// downtime per group. Each cluster is labeled with its most frequent note.
// All failure modes degrade to error result objects.
func (e *Engine) clusterCauses(rs *model.RecordSet) model.AnalysisResult {
	logs := []notedLog{}
	noted := 0
	dim := 0
	for i := range rs.Records {
		rec := &rs.Records[i]
		if rec.Document == "" {
			continue
		}
		noted++
		// Only records carrying a usable vector participate; the rest
		// must not sink the whole analysis.
		if len(rec.Embedding) == 0 {
			continue
		}
		if dim == 0 {
			dim = len(rec.Embedding)
		}
		if len(rec.Embedding) != dim {
			continue
		}
		logs = append(logs, notedLog{
			embedding: rec.Embedding,
			minutes:   rec.Minutes(),
			note:      rec.Document,
		})
	}
	if noted == 0 {
		return model.ErrorResult(msgNoNotes)
	}
	if len(logs) == 0 {
		return model.ErrorResult(msgNotEnoughData)
	}

	n := len(logs)

	k := MaxClusters
	if n < k {
		k = n
	}

	// A single cluster needs no partitioning.
	if k == 1 {
		return aggregateClusters(logs, [][]int{allIndices(n)})
	}

	reduced := reduceDimensions(logs, n, dim)

	observations := make(clusters.Observations, n)
	for i := 0; i < n; i++ {
		observations[i] = indexedObservation{idx: i, coords: reduced[i]}
	}

	km := kmeans.New()
	partition, err := km.Partition(observations, k)
	if err != nil {
		return model.ErrorResult(msgNotEnoughData)
	}

	groups := make([][]int, 0, len(partition))
	for _, cluster := range partition {
		members := make([]int, 0, len(cluster.Observations))
		for _, obs := range cluster.Observations {
			if io, ok := obs.(indexedObservation); ok {
				members = append(members, io.idx)
			}
		}
		if len(members) > 0 {
			groups = append(groups, members)
		}
	}
	return aggregateClusters(logs, groups)
}

// reduceDimensions projects the embeddings onto their leading principal
// components. When reduction is not possible the raw embeddings are used.
func reduceDimensions(logs []notedLog, n, dim int) []clusters.Coordinates {
	raw := func() []clusters.Coordinates {
		out := make([]clusters.Coordinates, n)
		for i, l := range logs {
			out[i] = clusters.Coordinates(l.embedding)
		}
		return out
	}

	comps := MaxComponents
	if n < comps {
		comps = n
	}
	if dim < comps {
		comps = dim
	}
	// PCA needs at least two samples and a real reduction to be useful.
	if n < 2 || comps >= dim || comps < 1 {
		return raw()
	}

	flat := make([]float64, 0, n*dim)
	for _, l := range logs {
		flat = append(flat, l.embedding...)
	}
	data := mat.NewDense(n, dim, flat)

	var pc stat.PC
	if !pc.PrincipalComponents(data, nil) {
		return raw()
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)

	// Center the columns before projecting.
	means := make([]float64, dim)
	for j := 0; j < dim; j++ {
		col := mat.Col(nil, j, data)
		var sum float64
		for _, v := range col {
			sum += v
		}
		means[j] = sum / float64(n)
	}
	centered := mat.NewDense(n, dim, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < dim; j++ {
			centered.Set(i, j, data.At(i, j)-means[j])
		}
	}

	var projected mat.Dense
	projected.Mul(centered, vecs.Slice(0, dim, 0, comps))

	out := make([]clusters.Coordinates, n)
	for i := 0; i < n; i++ {
		out[i] = clusters.Coordinates(mat.Row(nil, i, &projected))
	}
	return out
}

// aggregateClusters sums downtime per group and labels each group with its
// most frequent note. Groups are ranked by total downtime.
func aggregateClusters(logs []notedLog, groups [][]int) model.AnalysisResult {
	causes := make([]model.ClusterCause, 0, len(groups))
	for _, members := range groups {
		var total float64
		counts := map[string]int{}
		order := []string{}
		for _, idx := range members {
			l := logs[idx]
			total += l.minutes
			if _, seen := counts[l.note]; !seen {
				order = append(order, l.note)
			}
			counts[l.note]++
		}

		label := ""
		best := 0
		for _, note := range order {
			if counts[note] > best {
				label, best = note, counts[note]
			}
		}

		causes = append(causes, model.ClusterCause{
			Label:         label,
			TotalMinutes:  total,
			IncidentCount: len(members),
		})
	}

	sort.SliceStable(causes, func(i, j int) bool {
		return causes[i].TotalMinutes > causes[j].TotalMinutes
	})

	return model.AnalysisResult{Kind: model.KindClusters, TopCauses: causes}
}

func allIndices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
