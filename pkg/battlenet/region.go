package battlenet

import "fmt"

// Region is one of the account regions served by the profile APIs.
type Region string

const (
	RegionEU Region = "eu"
	RegionUS Region = "us"
	RegionKR Region = "kr"
	RegionTW Region = "tw"
)

var Regions = []Region{RegionEU, RegionUS, RegionKR, RegionTW}

func ParseRegion(s string) (Region, error) {
	for _, region := range Regions {
		if s == string(region) {
			return region, nil
		}
	}
	return "", fmt.Errorf("unknown region %q", s)
}
