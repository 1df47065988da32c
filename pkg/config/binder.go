package config

import (
	"reflect"
	"strings"

	"github.com/spf13/viper"
)

// bindEnvs registers every mapstructure key of iface so Unmarshal sees
// values that only exist in the environment.
// https://github.com/spf13/viper/issues/188#issuecomment-399884438
func bindEnvs(v *viper.Viper, iface interface{}, parts ...string) {
	ifv := reflect.ValueOf(iface)
	ift := reflect.TypeOf(iface)
	for i := 0; i < ift.NumField(); i++ {
		fv := ifv.Field(i)
		ft := ift.Field(i)
		tv, ok := ft.Tag.Lookup("mapstructure")
		if !ok {
			continue
		}
		if fv.Kind() == reflect.Struct {
			bindEnvs(v, fv.Interface(), append(parts, tv)...)
			continue
		}
		_ = v.BindEnv(strings.Join(append(parts, tv), "."))
	}
}
