// Package enrichment holds the domain model of the recipe image enrichment
// pipeline: the candidates pulled from the record store, the classified
// outcome of each crawl attempt, and the collaborator interfaces the pipeline
// is assembled from.
//
// A record is "done" exactly when its image field is non-null. Found outcomes
// write the extracted URL, broken links write a fixed placeholder, and misses
// write nothing so the record stays eligible for a later run.
package enrichment
