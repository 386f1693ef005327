package retrieval

// singleLinkageClusters runs agglomerative single-linkage clustering: it
// repeatedly merges the two closest clusters (by the best pairwise metric
// between any of their members) as long as that best distance clears
// threshold, stopping early once maxClusters is reached (0 = no cap).
func singleLinkageClusters(items []Result, metric func(a, b Result) float64, threshold float64, maxClusters int) [][]Result {
	if len(items) == 0 {
		return nil
	}

	clusters := make([][]Result, len(items))
	for i, it := range items {
		clusters[i] = []Result{it}
	}

	for {
		if maxClusters > 0 && len(clusters) <= maxClusters {
			break
		}
		bestI, bestJ, bestScore := -1, -1, threshold
		for i := 0; i < len(clusters); i++ {
			for j := i + 1; j < len(clusters); j++ {
				score := clusterLinkage(clusters[i], clusters[j], metric)
				if score >= bestScore {
					bestScore = score
					bestI, bestJ = i, j
				}
			}
		}
		if bestI == -1 {
			break
		}
		clusters[bestI] = append(clusters[bestI], clusters[bestJ]...)
		clusters = append(clusters[:bestJ], clusters[bestJ+1:]...)
	}

	return clusters
}

// clusterLinkage returns the maximum pairwise metric between any member of
// a and any member of b (single-linkage: clusters merge on their closest
// pair, not their average distance).
func clusterLinkage(a, b []Result, metric func(x, y Result) float64) float64 {
	best := -1.0
	for _, x := range a {
		for _, y := range b {
			if s := metric(x, y); s > best {
				best = s
			}
		}
	}
	return best
}
