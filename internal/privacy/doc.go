// Package privacy orchestrates anonymization: entity detection,
// session-consistent token assignment, relationship inference, and token
// reconstruction.
//
// The same exact entity value always resolves to the same token within a
// session, token suffixes are strictly increasing per type, and re-running
// deidentification over already-tokenized text is a no-op. Batch calls fan
// detection out across a worker pool and serialize session mutation in
// input order, so a batch produces the same token assignment as processing
// the items sequentially.
package privacy
