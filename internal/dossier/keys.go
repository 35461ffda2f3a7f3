package dossier

// Key namespaces. Each component owns a disjoint prefix so lost updates
// under concurrent writers stay confined to one component's data.
const (
	// RegistryKey holds the whole registry snapshot.
	RegistryKey = "pmo:registry"

	payloadKeyPrefix = "pmo:doc:"
)

// PayloadKey returns the storage key for a document's payload record.
func PayloadKey(documentID string) string {
	return payloadKeyPrefix + documentID
}
