package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"resume-builder/backend/internal/session/domain"
)

// CountryHeader carries the caller's ISO country code as resolved by the edge proxy.
const CountryHeader = "CF-IPCountry"

// ClientInfo is the device and location metadata a client may send with login and refresh requests.
type ClientInfo struct {
	DeviceType     string `json:"deviceType"`
	Browser        string `json:"browser"`
	BrowserVersion string `json:"browserVersion"`
	OS             string `json:"os"`
	OSVersion      string `json:"osVersion"`
	Location       string `json:"location"`
	CountryCode    string `json:"countryCode"`
}

// Client builds the session client record. The IP always comes from the connection; the country
// falls back to CountryHeader when the body has none.
func (ci ClientInfo) Client(c *gin.Context) domain.Client {
	country := strings.ToUpper(strings.TrimSpace(ci.CountryCode))
	if country == "" {
		country = strings.ToUpper(strings.TrimSpace(c.GetHeader(CountryHeader)))
	}
	// Cloudflare reports unknown and Tor exits as XX and T1.
	if country == "XX" || country == "T1" || len(country) != 2 {
		country = ""
	}
	return domain.Client{
		Device: domain.DeviceInfo{
			DeviceType:     strings.TrimSpace(ci.DeviceType),
			Browser:        strings.TrimSpace(ci.Browser),
			BrowserVersion: strings.TrimSpace(ci.BrowserVersion),
			OS:             strings.TrimSpace(ci.OS),
			OSVersion:      strings.TrimSpace(ci.OSVersion),
		},
		IPAddress:   c.ClientIP(),
		Location:    strings.TrimSpace(ci.Location),
		CountryCode: country,
	}
}
