package statestore

import (
	"github.com/jwalitptl/ehr-chainview/internal/model"
)

// ByAddress keys a log by one address argument.
func ByAddress(arg string) KeyFunc {
	return func(e model.LogEntry) (model.Key, bool) {
		addr, ok := e.Address(arg)
		if !ok {
			return model.Key{}, false
		}
		return model.NewKey(addr, ""), true
	}
}

// ByAddressWithSub keys a log by an address argument and a fixed subkey.
func ByAddressWithSub(arg, sub string) KeyFunc {
	return func(e model.LogEntry) (model.Key, bool) {
		addr, ok := e.Address(arg)
		if !ok {
			return model.Key{}, false
		}
		return model.NewKey(addr, sub), true
	}
}

// ByAddressAndBytes32 keys a log by an address argument with a bytes32
// argument, such as a role id, as subkey.
func ByAddressAndBytes32(addrArg, subArg string) KeyFunc {
	return func(e model.LogEntry) (model.Key, bool) {
		addr, ok := e.Address(addrArg)
		if !ok {
			return model.Key{}, false
		}
		sub, ok := e.Bytes32(subArg)
		if !ok {
			return model.Key{}, false
		}
		return model.NewKey(addr, sub.Hex()), true
	}
}

// ByAddressPair keys a log by one address with another as subkey.
func ByAddressPair(addrArg, subArg string) KeyFunc {
	return func(e model.LogEntry) (model.Key, bool) {
		addr, ok := e.Address(addrArg)
		if !ok {
			return model.Key{}, false
		}
		sub, ok := e.Address(subArg)
		if !ok {
			return model.Key{}, false
		}
		return model.NewKey(addr, sub.Hex()), true
	}
}
