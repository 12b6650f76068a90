// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package password

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// commonDigests holds SHA-256 digests of lowercased, widely leaked passwords.
// Only digests are stored so the binary never embeds the cleartext list.
var commonDigests = map[string]struct{}{
	"5e884898da28047151d0e56f8dc6292773603d0d6aabbdd62a11ef721d1542d8": {},
	"8d969eef6ecad3c29a3a629280e686cf0c3f5d5a86aff3ca12020c923adc6c92": {},
	"ef797c8118f02dfb649607dd5d3f8c7623048c9c063d532cc95c5ed7a898a64f": {},
	"15e2b0d3c33891ebb0f1ef609ec419420c20e320ce94c65fbc8c3312448eb225": {},
	"65e84be33532fb784c48129675f9eff3a682b27168c0ea744b2cf58ee02337c5": {},
	"6ca13d52ca70c883e0f0bb101e425a89e8624de51db2d2392593af6a84118090": {},
	"0b14d501a594442a01c6859541bcb3e8164d183d32937b851835442f69d5c94e": {},
	"ef92b778bafe771e89245b89ecbc08a44a4e166c06659911881f383d4473e94f": {},
	"bcb15f821479b4d5772bd0ca866c00ad5f926e3580720659cc80d39c9d09802a": {},
	"1c8bfe8f801d79745c4631d09fff36c82aa37fc4cce4fc946683d7b336b63032": {},
	"280d44ab1e9f79b5cce2dd4f58f5fe91f0fbacdac9f7447dffc318ceb79f2d02": {},
	"000c285457fc971f862a79b786476c78812c8897063c6fa9c045f579a3b2d63f": {},
	"a9c43be948c5cabd56ef2bacffb77cdaa5eec49dd5eb0cc4129cf3eda5f0e74c": {},
	"6382deaf1f5dc6e792b76db4a4a7bf2ba468884e000b25e7928e621e27fb23cb": {},
	"e4ad93ca07acb8d908a3aa41e920ea4f4ef4f26e7f86cf8291c5db289780a5ae": {},
	"8c6976e5b5410415bde908bd4dee15dfb167a9c873fc4bb8a81f6f2ab448a918": {},
	"240be518fabd2724ddb6f04eeb1da5967448d7e831c08c8fa822809f74c720a9": {},
	"fc613b4dfd6736a7bd268c8a0e74ed0d1c04a959f59dd74ef2874983fd443fc9": {},
	"a941a4c4fd0c01cddef61b8be963bf4c1e2b0811c037ce3f1835fddf6ef6c223": {},
	"04e77bf8f95cb3e1a36a59d1e93857c411930db646b46c218a0352e432023cf2": {},
	"203b70b5ae883932161bbd0bded9357e763e63afce98b16230be33f0b94c2cc5": {},
	"a01edad91c00abe7be5b72b5e36bf4ce3c6f26e8bce3340eba365642813ab8b6": {},
	"73cd1b16c4fb83061ad18a0b29b9643a68d4640075a466dc9e51682f84a847f5": {},
	"74fca0325b5fdb3a34badb40a2581cfbd5344187e8d3432952a5abc0929c1246": {},
	"0bb09d80600eec3eb9d7793a6f859bedde2a2d83899b70bd78e961ed674b32f4": {},
	"34550715062af006ac4fab288de67ecb44793c3a05c475227241535f6ef7a81b": {},
	"8f0e2f76e22b43e2855189877e7dc1e1e7d98c226c95db247cd1d547928334a9": {},
	"a075d17f3d453073853f813838c15b8023b8c487038436354fe599c3942e1f95": {},
	"daaad6e5604e8e17bd9f108d91e26afe6281dac8fda0091040a7a6d7bd9b43b5": {},
	"fcc3a23fc7232cc89c7cb0f23d8774fefb73d7dc2ab22e6a1b6b8b202b4dcc91": {},
	"057ba03d6c44104863dc7361fe4578965d1887360f90a0895882e58a6248fc86": {},
	"2bb80d537b1da3e38bd30361aa855686bde0eacd7162fef6a25fe97bf527a25b": {},
	"428821350e9691491f616b754cd8315fb86d797ab35d843479e732ef90665324": {},
	"72ab994fa2eb426c051ef59cad617750bfe06d7cf6311285ff79c19c32afd236": {},
	"e3e93b60bd722ced25a041f65afd4e396e2bafe57e0c3de0c8b6b0aa8b054506": {},
	"85738f8f9a7f1b04b5329c590ebcb9e425925c6d0984089c43a022de4f19c281": {},
	"13b1f7ec5beaefc781e43a3b344371cd49923a8a05edd71844b92f56f6a08d38": {},
	"27cc6994fc1c01ce6659c6bddca9b69c4c6a9418065e612c69d110b3f7b11f8a": {},
	"7d0c50df99bb292cf41a4ef5a480c943eaa6d369789a043a0cfd78d01d00d9ce": {},
	"8c2306fa4ec8f2e4030b307a7e850dd802d21f4e86721d5c07eadb68c6613144": {},
	"f82a7d02e8f0a728b7c3e958c278745cb224d3d7b2e3b84c0ecafc5511fdbdb7": {},
	"5751a44782594819e4cb8aa27c2c9d87a420af82bc6a5a05bc7f19c3bb00452b": {},
	"b9c950640e1b3740e98acb93e669c65766f6670dd1609ba91ff41052ba48c6f3": {},
	"a76256b648ff4d3fc47564ca4fc0280fdcea768a1d9283cf1b218209a4bb93b5": {},
	"3a5745a05f87ddee1db68b217dc043bfa206d1c7aaa1dd0a7dd76b852a733597": {},
	"4c2d3d363fbebf75e0cd3ec423c371690d1d376a37e05805ebfdfcb09ddb7431": {},
	"3a4e404777ea37936b9821670c5d04391855d4d1f9cf5ab4ba45ff5c926d10c9": {},
	"f61d2974715477dfe92bcb8ed5b767abdce80a0d2dae0ca07a99c5e4901a1d30": {},
	"4194d1706ed1f408d5e02d672777019f4d5385c766a8c6ca8acba3167d36a7b9": {},
}

// isCommon reports whether the lowercased candidate hashes into the dictionary.
func isCommon(candidate string) bool {
	sum := sha256.Sum256([]byte(strings.ToLower(candidate)))
	_, found := commonDigests[hex.EncodeToString(sum[:])]
	return found
}
