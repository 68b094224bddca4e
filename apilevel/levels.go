package apilevel

import (
	"fmt"
	"math"
	"strings"
)

// https://source.android.com/setup/start/build-numbers
const (
	V_AnyMin int32 = 0             // Minimum sdk version, if you don't care about the lower bound
	V_AnyMax int32 = math.MaxInt32 // Maximum sdk version, if you don't care about the upper bound

	V1_0_InitialRelease    int32 = 1
	V1_5_Cupcake           int32 = 3
	V1_6_Donut             int32 = 4
	V2_0_Eclair            int32 = 5
	V2_0_1_Eclair          int32 = 6
	V2_1_Eclair            int32 = 7
	V2_2_Froyo             int32 = 8
	V2_3_Gingerbread       int32 = 9
	V2_3_3_Gingerbread     int32 = 10
	V3_0_Honeycomb         int32 = 11
	V3_1_Honeycomb         int32 = 12
	V3_2_Honeycomb         int32 = 13
	V4_0_1_ICS             int32 = 14
	V4_0_3_ICS             int32 = 15
	V4_1_JellyBean         int32 = 16
	V4_2_JellyBean         int32 = 17
	V4_3_JellyBean         int32 = 18
	V4_4_KitKat            int32 = 19
	V5_0_Lollipop          int32 = 21
	V5_1_Lollipop          int32 = 22
	V6_0_Marshmallow       int32 = 23
	V7_0_Nougat            int32 = 24
	V7_1_Nougat            int32 = 25
	V8_0_Oreo              int32 = 26
	V8_1_Oreo              int32 = 27
	V9_0_Pie               int32 = 28
	V10_0_Ten              int32 = 29
	V11_0_Eleven           int32 = 30
	V12_0_S                int32 = 31
	V12_1_S_V2             int32 = 32
	V13_0_TIRAMISU         int32 = 33
	V14_0_UPSIDE_DOWN_CAKE int32 = 34
)

// PrefersStrongDigests reports whether the platform picks the strongest
// digest listed in a manifest section instead of walking Digest-Algorithms.
func PrefersStrongDigests(level int32) bool {
	return level >= V4_3_JellyBean
}

// AcceptsSignedAttributes reports whether PKCS#7 signed attributes are
// verified correctly on the platform.
func AcceptsSignedAttributes(level int32) bool {
	return level >= V4_4_KitKat
}

// VerifiesAllSignerInfos reports whether every SignerInfo of a signature
// block is tried, rather than only the first one.
func VerifiesAllSignerInfos(level int32) bool {
	return level >= V7_0_Nougat
}

// ChecksStrippingProtection reports whether the platform honours the
// X-Android-APK-Signed attribute of a signature file.
func ChecksStrippingProtection(level int32) bool {
	return level >= V7_0_Nougat
}

// Range is an inclusive span of platform levels.
type Range struct {
	Min int32
	Max int32
}

// From returns a range starting at min with no upper bound.
func From(min int32) Range {
	return Range{Min: min, Max: V_AnyMax}
}

// Between returns the inclusive range min..max.
func Between(min, max int32) Range {
	return Range{Min: min, Max: max}
}

func (r Range) Contains(level int32) bool {
	return level >= r.Min && level <= r.Max
}

func (r Range) String() string {
	switch {
	case r.Min == r.Max:
		return fmt.Sprintf("%d", r.Min)
	case r.Max == V_AnyMax:
		return fmt.Sprintf("%d+", r.Min)
	default:
		return fmt.Sprintf("%d-%d", r.Min, r.Max)
	}
}

// Ranges is an ordered list of disjoint ranges.
type Ranges []Range

func (rs Ranges) String() string {
	parts := make([]string, 0, len(rs))
	for _, r := range rs {
		parts = append(parts, r.String())
	}
	return strings.Join(parts, ", ")
}

// Uncovered returns the parts of min..max that none of the supported ranges
// contain. The supported ranges must be sorted and must not overlap.
func Uncovered(min, max int32, supported Ranges) Ranges {
	var res Ranges
	cur := min
	for _, r := range supported {
		if cur > max {
			break
		}
		if r.Max < cur {
			continue
		}
		if r.Min > max {
			break
		}
		if r.Min > cur {
			res = append(res, Range{Min: cur, Max: r.Min - 1})
		}
		if r.Max >= max {
			return res
		}
		cur = r.Max + 1
	}
	if cur <= max {
		res = append(res, Range{Min: cur, Max: max})
	}
	return res
}

func String(level int32) string {
	switch level {
	case V1_5_Cupcake:
		return "V1_5_Cupcake"
	case V1_6_Donut:
		return "V1_6_Donut"
	case V2_0_Eclair:
		return "V2_0_Eclair"
	case V2_0_1_Eclair:
		return "V2_0_1_Eclair"
	case V2_1_Eclair:
		return "V2_1_Eclair"
	case V2_2_Froyo:
		return "V2_2_Froyo"
	case V2_3_Gingerbread:
		return "V2_3_Gingerbread"
	case V2_3_3_Gingerbread:
		return "V2_3_3_Gingerbread"
	case V3_0_Honeycomb:
		return "V3_0_Honeycomb"
	case V3_1_Honeycomb:
		return "V3_1_Honeycomb"
	case V3_2_Honeycomb:
		return "V3_2_Honeycomb"
	case V4_0_1_ICS:
		return "V4_0_1_ICS"
	case V4_0_3_ICS:
		return "V4_0_3_ICS"
	case V4_1_JellyBean:
		return "V4_1_JellyBean"
	case V4_2_JellyBean:
		return "V4_2_JellyBean"
	case V4_3_JellyBean:
		return "V4_3_JellyBean"
	case V4_4_KitKat:
		return "V4_4_KitKat"
	case V5_0_Lollipop:
		return "V5_0_Lollipop"
	case V5_1_Lollipop:
		return "V5_1_Lollipop"
	case V6_0_Marshmallow:
		return "V6_0_Marshmallow"
	case V7_0_Nougat:
		return "V7_0_Nougat"
	case V7_1_Nougat:
		return "V7_1_Nougat"
	case V8_0_Oreo:
		return "V8_0_Oreo"
	case V8_1_Oreo:
		return "V8_1_Oreo"
	case V9_0_Pie:
		return "V9_0_Pie"
	case V10_0_Ten:
		return "V10_0_Ten"
	case V11_0_Eleven:
		return "V11_0_Eleven"
	case V12_0_S:
		return "V12_0_S"
	case V12_1_S_V2:
		return "V12_1_S_V2"
	case V13_0_TIRAMISU:
		return "V13_0_TIRAMISU"
	case V14_0_UPSIDE_DOWN_CAKE:
		return "V14_0_UPSIDE_DOWN_CAKE"
	case V_AnyMin:
		return "-Infinity"
	case V_AnyMax:
		return "+Infinity"
	}
	return fmt.Sprintf("%d", level)
}
