package sync

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/biter777/countries"
	"github.com/tidwall/gjson"
	"github.com/ttacon/libphonenumber"
)

// Modifiers registered here may be used in member field paths, e.g.
// "country|@countryName" or "mobile|@phone:44".
func init() {

	gjson.AddModifier("contains", func(json, arg string) string {
		res := gjson.Parse(json)
		if res.IsArray() {
			values := res.Array()
			for _, v := range values {
				if strings.Contains(v.String(), arg) {
					return fmt.Sprintf("%t", true)
				}
			}
			return fmt.Sprintf("%t", false)
		}
		return fmt.Sprintf("%t", strings.Contains(res.String(), arg))
	})

	gjson.AddModifier("phone", func(json, arg string) string {
		res := gjson.Parse(json)
		if !res.Exists() {
			return ""
		}
		number := strings.TrimSpace(res.String())
		if number == "" {
			return `""`
		}
		region := "ZZ"
		if i, err := strconv.Atoi(arg); err == nil {
			region = libphonenumber.GetRegionCodeForCountryCode(i)
		}
		num, err := libphonenumber.Parse(number, region)
		if err != nil {
			// unparseable numbers are passed through untouched
			return strconv.Quote(number)
		}
		return strconv.Quote(libphonenumber.Format(num, libphonenumber.INTERNATIONAL))
	})

	gjson.AddModifier("countryName", func(json, arg string) string {
		s := gjson.Parse(json).String()
		c := countries.ByName(s) // will match on Alpha-2 / Alpha-3 / Name
		if countries.Unknown == c {
			return ""
		}
		return fmt.Sprintf(`"%s"`, c.String()) // returns Country Name
	})

	gjson.AddModifier("lower", func(json, arg string) string {
		res := gjson.Parse(json)
		if !res.Exists() {
			return ""
		}
		return strconv.Quote(strings.ToLower(res.String()))
	})

	gjson.AddModifier("upper", func(json, arg string) string {
		res := gjson.Parse(json)
		if !res.Exists() {
			return ""
		}
		return strconv.Quote(strings.ToUpper(res.String()))
	})

}
