// Package memory provides the persistent-state layer shared by orchestrated crews.
//
// A Coordinator composes three storage tiers behind one read/write/status/sync
// contract. Memories are namespaced by crew name.
//
// Architecture:
//   - CrewStore: one JSON document per crew on disk, rewritten wholesale on each write
//   - SessionStore: bounded in-process buffer per crew, oldest entries evicted first
//   - VectorStore: embedding-indexed collection shared by all crews (chromem-go locally)
//   - Coordinator: owns initialization order, dispatch by Tier and synchronization
//
// Error model:
//   - WriteMemory/ReadMemory/SynchronizeMemory absorb failures into false/ok=false
//     and log them; memory is best-effort and never aborts task execution
//   - Write/Read/Synchronize expose the same failures as wrapped sentinel errors
//
// Note that on the bool API a failed read and a crew with no data look the same.
// Callers that must tell them apart use Read and check errors.Is(err, ErrNotFound).
//
// Concurrency:
//   - one lock per crew record in the crew and session tiers
//   - a separate guard around the vector handle
//
// Backends live in subpackages:
//   - store/chromem: chromem-go vector store (persistent or in-process with snapshots)
//   - store/objstore: S3-compatible mirror for crew files (minio-go)
//   - embedder/hashed: offline feature-hashing embedder
//   - embedder/onnx: all-MiniLM-L6-v2 through ONNX Runtime (build tag onnx)
package memory
