package gst

import "sort"

// StateCode is the two digit GST state code, e.g. "27" for Maharashtra.
type StateCode string

// State pairs a GST state code with its state or union territory name.
type State struct {
	Code StateCode `json:"code"`
	Name string    `json:"name"`
}

// Code 25 (Daman and Diu) was merged into 26 and is no longer issued.
var stateNames = map[StateCode]string{
	"01": "Jammu and Kashmir",
	"02": "Himachal Pradesh",
	"03": "Punjab",
	"04": "Chandigarh",
	"05": "Uttarakhand",
	"06": "Haryana",
	"07": "Delhi",
	"08": "Rajasthan",
	"09": "Uttar Pradesh",
	"10": "Bihar",
	"11": "Sikkim",
	"12": "Arunachal Pradesh",
	"13": "Nagaland",
	"14": "Manipur",
	"15": "Mizoram",
	"16": "Tripura",
	"17": "Meghalaya",
	"18": "Assam",
	"19": "West Bengal",
	"20": "Jharkhand",
	"21": "Odisha",
	"22": "Chhattisgarh",
	"23": "Madhya Pradesh",
	"24": "Gujarat",
	"26": "Dadra and Nagar Haveli and Daman and Diu",
	"27": "Maharashtra",
	"28": "Andhra Pradesh (Before Division)",
	"29": "Karnataka",
	"30": "Goa",
	"31": "Lakshadweep",
	"32": "Kerala",
	"33": "Tamil Nadu",
	"34": "Puducherry",
	"35": "Andaman and Nicobar Islands",
	"36": "Telangana",
	"37": "Andhra Pradesh",
	"38": "Ladakh",
	"97": "Other Territory",
}

// ValidState reports whether code is a known GST state code.
func ValidState(code StateCode) bool {
	_, ok := stateNames[code]
	return ok
}

// StateName returns the state name for code, or "" when unknown.
func StateName(code StateCode) string {
	return stateNames[code]
}

// States returns the state table ordered by code.
func States() []State {
	out := make([]State, 0, len(stateNames))
	for code, name := range stateNames {
		out = append(out, State{Code: code, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
