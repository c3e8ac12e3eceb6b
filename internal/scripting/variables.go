package scripting

import (
	"github.com/dop251/goja"

	"github.com/MJE43/raid-frame-finder/internal/engine"
	"github.com/MJE43/raid-frame-finder/internal/scan"
)

// injectConstants exposes stat indexes and the flawless value to scripts.
func injectConstants(vm *goja.Runtime) {
	vm.Set("HP", int(engine.StatHP))
	vm.Set("ATK", int(engine.StatAtk))
	vm.Set("DEF", int(engine.StatDef))
	vm.Set("SPA", int(engine.StatSpA))
	vm.Set("SPD", int(engine.StatSpD))
	vm.Set("SPE", int(engine.StatSpe))
	vm.Set("MAX_IV", engine.MaxIV)
}

func judgeName(iv uint8) string {
	return scan.JudgeIV(iv).String()
}

// frameObject builds the read-only view of a frame passed to match().
// Enum fields use the same lowercase names as the JSON API.
func frameObject(rt *goja.Runtime, f engine.Frame) *goja.Object {
	ivs := make([]interface{}, engine.StatCount)
	for i, v := range f.IVs {
		ivs[i] = int(v)
	}

	obj := rt.NewObject()
	obj.Set("ivs", rt.NewArray(ivs...))
	obj.Set("flawless", f.IVs.Flawless())
	obj.Set("ability", f.Ability.String())
	obj.Set("gender", f.Gender.String())
	obj.Set("nature", f.Nature.String())
	obj.Set("shiny", f.Shininess.String())
	obj.Set("seed", f.Seed.String())
	obj.Set("skips", f.Skips)
	obj.Set("ec", f.EC)
	obj.Set("pid", f.PID)
	return obj
}
