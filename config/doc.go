// Package config holds the machine configuration: memory geometry, the
// scheduler quantum, timer rates and the console selection. It can be
// populated from YAML loaded through an afs URL, and overridden by a boot
// argument string parsed by the bootargs subpackage. The zero value is not
// useful; start from DefaultConfig.
package config
