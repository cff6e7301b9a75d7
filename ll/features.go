package ll

import "strings"

// FeatureSet is the 64-bit feature mask exchanged by LL_FEATURE_REQ and
// LL_FEATURE_RSP.
type FeatureSet uint64

const (
	FeatureEncryption             FeatureSet = 1 << 0
	FeatureConnParamReq           FeatureSet = 1 << 1
	FeatureExtRejectInd           FeatureSet = 1 << 2
	FeatureSlaveFeatureExchange   FeatureSet = 1 << 3
	FeaturePing                   FeatureSet = 1 << 4
	FeatureDataLengthExtension    FeatureSet = 1 << 5
	FeatureLLPrivacy              FeatureSet = 1 << 6
	FeatureExtScannerFilterPolicy FeatureSet = 1 << 7
)

// SupportedFeatures is what this stack reports to the peer.
const SupportedFeatures = FeaturePing

// Has reports whether every feature in f is in s.
func (s FeatureSet) Has(f FeatureSet) bool {
	return s&f == f
}

func (s FeatureSet) String() string {
	names := []struct {
		bit  FeatureSet
		name string
	}{
		{FeatureEncryption, "encryption"},
		{FeatureConnParamReq, "conn-param-req"},
		{FeatureExtRejectInd, "ext-reject-ind"},
		{FeatureSlaveFeatureExchange, "slave-feature-exchange"},
		{FeaturePing, "ping"},
		{FeatureDataLengthExtension, "data-length-extension"},
		{FeatureLLPrivacy, "ll-privacy"},
		{FeatureExtScannerFilterPolicy, "ext-scanner-filter-policy"},
	}
	var set []string
	for _, n := range names {
		if s.Has(n.bit) {
			set = append(set, n.name)
		}
	}
	if len(set) == 0 {
		return "none"
	}
	return strings.Join(set, "|")
}
