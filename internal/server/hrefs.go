package server

import "fmt"

// Hrefs builds every href the server emits. The prefix lets deployments sit
// behind a path-rewriting proxy without breaking resource discovery.
type Hrefs struct {
	Prefix string
}

func (h Hrefs) join(format string, args ...any) string {
	return h.Prefix + fmt.Sprintf(format, args...)
}

func (h Hrefs) DeviceCapability() string { return h.join("/dcap") }
func (h Hrefs) Time() string             { return h.join("/tm") }

func (h Hrefs) EndDeviceList() string             { return h.join("/edev") }
func (h Hrefs) EndDevice(site int64) string       { return h.join("/edev/%d", site) }
func (h Hrefs) Registration(site int64) string    { return h.join("/edev/%d/rg", site) }
func (h Hrefs) ConnectionPoint(site int64) string { return h.join("/edev/%d/cp", site) }

func (h Hrefs) FSAList(site int64) string  { return h.join("/edev/%d/fsa", site) }
func (h Hrefs) FSA(site, fsa int64) string { return h.join("/edev/%d/fsa/%d", site, fsa) }
func (h Hrefs) FSADERProgramList(site, fsa int64) string {
	return h.join("/edev/%d/fsa/%d/derp", site, fsa)
}

func (h Hrefs) DERList(site int64) string         { return h.join("/edev/%d/der", site) }
func (h Hrefs) DER(site int64) string             { return h.join("/edev/%d/der/1", site) }
func (h Hrefs) DERCapability(site int64) string   { return h.join("/edev/%d/der/1/dercap", site) }
func (h Hrefs) DERSettings(site int64) string     { return h.join("/edev/%d/der/1/derg", site) }
func (h Hrefs) DERAvailability(site int64) string { return h.join("/edev/%d/der/1/dera", site) }
func (h Hrefs) DERStatus(site int64) string       { return h.join("/edev/%d/der/1/ders", site) }

func (h Hrefs) DERProgramList(site int64) string { return h.join("/edev/%d/derp", site) }
func (h Hrefs) DERProgram(site, group int64) string {
	return h.join("/edev/%d/derp/%d", site, group)
}
func (h Hrefs) DERControlList(site, group int64) string {
	return h.join("/edev/%d/derp/%d/derc", site, group)
}
func (h Hrefs) ActiveDERControlList(site, group int64) string {
	return h.join("/edev/%d/derp/%d/actderc", site, group)
}
func (h Hrefs) DefaultDERControl(site, group int64) string {
	return h.join("/edev/%d/derp/%d/dderc", site, group)
}
func (h Hrefs) DERControl(site, group, doe int64) string {
	return h.join("/edev/%d/derp/%d/derc/%d", site, group, doe)
}

func (h Hrefs) TariffProfileList(site int64) string { return h.join("/edev/%d/tp", site) }
func (h Hrefs) TariffProfile(site, tariff int64) string {
	return h.join("/edev/%d/tp/%d", site, tariff)
}
func (h Hrefs) RateComponentList(site, tariff int64) string {
	return h.join("/edev/%d/tp/%d/rc", site, tariff)
}
func (h Hrefs) RateComponent(site, tariff int64, day string, price int) string {
	return h.join("/edev/%d/tp/%d/rc/%s/%d", site, tariff, day, price)
}
func (h Hrefs) TimeTariffIntervalList(site, tariff int64, day string, price int) string {
	return h.join("/edev/%d/tp/%d/rc/%s/%d/tti", site, tariff, day, price)
}
func (h Hrefs) TimeTariffInterval(site, tariff int64, day string, price int, rate int64) string {
	return h.join("/edev/%d/tp/%d/rc/%s/%d/tti/%d", site, tariff, day, price, rate)
}
func (h Hrefs) ConsumptionTariffIntervalList(site, tariff int64, day string, price int, rate int64) string {
	return h.join("/edev/%d/tp/%d/rc/%s/%d/tti/%d/cti", site, tariff, day, price, rate)
}
func (h Hrefs) PricingReadingType(price int) string { return h.join("/pricing/rt/%d", price) }

func (h Hrefs) MirrorUsagePointList() string        { return h.join("/mup") }
func (h Hrefs) MirrorUsagePoint(group int64) string { return h.join("/mup/%d", group) }

func (h Hrefs) SubscriptionList(site int64) string { return h.join("/edev/%d/sub", site) }
func (h Hrefs) Subscription(site, sub int64) string {
	return h.join("/edev/%d/sub/%d", site, sub)
}

func (h Hrefs) ResponseSetList(site int64) string { return h.join("/edev/%d/rsps", site) }
func (h Hrefs) ResponseSet(site int64, set string) string {
	return h.join("/edev/%d/rsps/%s", site, set)
}
func (h Hrefs) ResponseList(site int64, set string) string {
	return h.join("/edev/%d/rsps/%s/rsp", site, set)
}
func (h Hrefs) Response(site int64, set string, id int64) string {
	return h.join("/edev/%d/rsps/%s/rsp/%d", site, set, id)
}
