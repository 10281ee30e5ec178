package apns

import "github.com/google/uuid"

// nextIdentifier folds a freshly generated UUID into a 32-bit
// notification identifier. A caller-supplied identifier of 0 is
// ambiguous with "no identifier" once it lands in the send history, so
// GatewayClient.Send generates one instead of writing a literal 0.
//
// Using only the UUID's first 4 bytes narrows 128 bits of randomness
// down to 32; at the send-history's bound of SendHistoryCapacity
// in-flight identifiers, the resulting birthday-bound collision
// probability is negligible for this use case.
func nextIdentifier() uint32 {
	id := uuid.New()
	return unpackU32BE(id[:4])
}
