package quiz

type Host struct {
	Name  string
	Emoji string
}

const DefaultHost = "เป็นกลางและให้ข้อมูล"

var Hosts = []Host{
	{Name: "นักแสดงตลกเสียดสี", Emoji: "😏"},
	{Name: "ศาสตราจารย์ผู้รอบรู้", Emoji: "🧑‍🏫"},
	{Name: "เชียร์ลีดเดอร์ผู้กระตือรือร้น", Emoji: "📣"},
	{Name: "นักสืบสายแข็ง", Emoji: "🕵️"},
}

// HostNames returns the default host followed by every named host.
func HostNames() []string {
	names := []string{DefaultHost}
	for _, h := range Hosts {
		names = append(names, h.Name)
	}
	return names
}
