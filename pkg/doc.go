// Package pkg provides the core libraries for Tessera photo mosaics.
//
// # Overview
//
// Tessera rebuilds a target image out of a library of photos. The target is
// divided into a grid of square cells and every cell is replaced by the
// photo whose average color is closest to the cell's, optionally limiting
// how often a photo may be reused. The finished mosaic is then blended with
// the target so the picture stays recognizable from afar.
//
// # Architecture
//
// The typical data flow through Tessera:
//
//	Raw photos
//	     ↓
//	[prepare] (crop, resize, average color, manifest)
//	     ↓
//	[tiles] processed directory → [catalog] of candidates
//	     ↓
//	[grid] assign a candidate to every cell of the fitted target
//	     ↓
//	[compose] paste tiles, blend with the target
//	     ↓
//	mosaic + blend JPEGs (optionally published via [storage])
//
// [pipeline] runs these stages for the CLI and the HTTP server alike.
//
// # Quick Start
//
//	runner := pipeline.NewRunner(nil, nil, logger)
//	result, err := runner.Execute(ctx, pipeline.Options{
//	    Input:             "target.jpg",
//	    RawImageDir:       "photos/",
//	    ProcessedImageDir: "tiles/",
//	    Repeat:            2,
//	})
//
// # Main Packages
//
// ## Domain
//
// [hsv] - HSV colors, averaging over image regions, and the distance used to
// rank candidates.
//
// [catalog] - The ordered candidate set with usage counts and the
// nearest-eligible-candidate search.
//
// [grid] - Cell geometry and the row-major assignment plan.
//
// [compose] - Rendering a plan into a mosaic and blending it with the target.
//
// ## Infrastructure
//
// [prepare] - Parallel tile preparation from raw photos.
//
// [tiles] - The processed tile directory: manifest, legacy file names, and a
// cached tile loader.
//
// [cache] - Null, memory, file and Redis caches for prepared tiles.
//
// [storage] - Publishing outputs to S3-compatible object storage.
//
// [observability] - Hooks for pipeline stages, cache lookups and HTTP
// requests.
//
// [errors] - Error codes shared by every package.
//
// [buildinfo] - Version information injected at build time.
package pkg
