package orgcache

import "strconv"

// Redis 键布局，与其他实例共享
const (
	KeyRequestTime = "sso:cache:request:time"
	KeyUserMap     = "sso:cache:user:map"
	KeyUserDataMap = "sso:cache:user:data:map"
	KeyDeptMap     = "sso:cache:dept:map"
	// KeySyncEvents 同步完成通知 stream
	KeySyncEvents = "sso:cache:sync:events"

	keyCtiRelatePrefix = "sso:hash:cti:relate:"
)

// CtiRelateKey CTI 绑定关系 hash 键，field 为外部系统用户编码
func CtiRelateKey(code int) string {
	return keyCtiRelatePrefix + strconv.Itoa(code)
}

func field(id int) string {
	return strconv.Itoa(id)
}
