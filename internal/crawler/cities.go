package crawler

import "strings"

// City is a crawlable city: the pinyin slug used in page URLs and the
// display name stored with records.
type City struct {
	Pinyin string `json:"pinyin"`
	Name   string `json:"name"`
}

// Cities lists every city the history site is crawled for.
var Cities = []City{
	{"kunming", "昆明"}, {"beijing", "北京"}, {"shanghai", "上海"},
	{"guangzhou", "广州"}, {"shenzhen", "深圳"}, {"chengdu", "成都"},
	{"chongqing", "重庆"}, {"tianjin", "天津"}, {"hangzhou", "杭州"},
	{"nanjing", "南京"}, {"wuhan", "武汉"}, {"xian", "西安"},
	{"changsha", "长沙"}, {"zhengzhou", "郑州"}, {"jinan", "济南"},
	{"qingdao", "青岛"}, {"dalian", "大连"}, {"shenyang", "沈阳"},
	{"haerbin", "哈尔滨"}, {"changchun", "长春"}, {"fuzhou", "福州"},
	{"xiamen", "厦门"}, {"nanning", "南宁"}, {"haikou", "海口"},
	{"guiyang", "贵阳"}, {"hefei", "合肥"}, {"lanzhou", "兰州"},
	{"shijiazhuang", "石家庄"}, {"taiyuan", "太原"}, {"nanchang", "南昌"},
}

// LookupCity finds a city by pinyin slug (case-insensitive) or display name.
func LookupCity(s string) (City, bool) {
	raw := strings.TrimSpace(s)
	low := strings.ToLower(raw)
	for _, c := range Cities {
		if c.Pinyin == low || c.Name == raw {
			return c, true
		}
	}
	return City{}, false
}

// NormalizeCity maps a known pinyin slug to its display name so that
// "Beijing", "beijing" and "北京" all query the same rows. Unknown input is
// returned trimmed.
func NormalizeCity(s string) string {
	if c, ok := LookupCity(s); ok {
		return c.Name
	}
	return strings.TrimSpace(s)
}
