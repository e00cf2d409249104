package icon

// Terminal stand-ins for the lucide icons plugins commonly reference.
var lucideGlyphs = map[string]string{
	"activity":       "📈",
	"alert-triangle": "⚠️",
	"bar-chart-2":    "📊",
	"box":            "📦",
	"bug":            "🐛",
	"check-circle-2": "✅",
	"clock":          "⏱️",
	"cpu":            "🧠",
	"database":       "🗄️",
	"file-text":      "📋",
	"flame":          "🔥",
	"gamepad-2":      "🎮",
	"gauge":          "🎯",
	"globe":          "🌐",
	"hard-drive":     "💾",
	"layers":         "🗂️",
	"map":            "🗺️",
	"memory-stick":   "🪣",
	"network":        "📡",
	"package":        "📦",
	"plug":           "🔌",
	"refresh-cw":     "🔄",
	"server":         "🖥️",
	"settings":       "⚙️",
	"shield":         "🛡️",
	"terminal":       ">_",
	"users":          "👥",
	"wrench":         "🔧",
	"zap":            "⚡",
}

var emojiAliases = map[string]string{
	"🖥️": "server", "💻": "server", "📟": "server",
	"🔌": "plug", "⚡": "zap", "💡": "zap", "🪄": "zap",
	"🔥": "flame", "⚙️": "settings", "🔩": "settings",
	"🔧": "wrench", "🛠️": "wrench",
	"⏱️": "clock", "⏳": "clock",
	"📈": "activity", "📉": "activity", "📊": "bar-chart-2", "🎯": "gauge",
	"💾": "hard-drive", "💿": "hard-drive", "📀": "hard-drive",
	"🗄️": "database", "🗃️": "database", "📦": "package",
	"🌐": "globe", "🌎": "globe", "🌍": "globe", "🔗": "network", "📡": "network",
	"👤": "users", "🧑": "users", "👥": "users",
	"👾": "gamepad-2", "🎮": "gamepad-2",
	"🗺️": "map", "🏔️": "map", "🌲": "map", "🏕️": "map",
	"🗂️": "layers", "📂": "layers", "📁": "layers",
	"🐛": "bug", "🚨": "alert-triangle", "⚠️": "alert-triangle", "❗": "alert-triangle",
	"📋": "file-text", "📝": "file-text",
	"🔑": "shield", "🛡️": "shield", "🔐": "shield",
	"🔄": "refresh-cw", "♻️": "refresh-cw", ">_": "terminal",
	"🧠": "cpu", "📲": "box", "🧩": "box", "🪣": "memory-stick", "✅": "check-circle-2",
}
