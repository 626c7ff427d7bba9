package main

import (
	"flag"
	"fmt"

	"github.com/gomlx/tiling/pkg/core/patches"
	"github.com/gomlx/tiling/pkg/core/raster"
	"github.com/gomlx/tiling/pkg/ml/patchjob"
	"github.com/gomlx/tiling/pkg/support/fsutil"
	"github.com/gomlx/tiling/pkg/support/rasterfile"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// stitchCmd stitches patch files, given in grid order, into one tile.
func stitchCmd(args []string) error {
	fs := flag.NewFlagSet("stitch", flag.ExitOnError)
	flagTile := sizeFlag(fs, "tile", "Size of the tile the patches were extracted from, including padding.")
	flagPatch := sizeFlag(fs, "patch", "Size of the extracted patches.")
	flagOverlap := fs.Int("overlap", 0, "Overlap in pixels of adjacent patches.")
	flagTileOut := sizeFlag(fs, "tile_out", "Size of the stitched tile. Defaults to -tile.")
	flagPatchOut := sizeFlag(fs, "patch_out", "Size of the patches to stitch. Defaults to -patch.")
	flagOrder := fs.String("order", "row", "Enumeration order of the patch positions: \"row\" or \"column\".")
	flagAverage := fs.Bool("average", false, "Average overlapping regions, instead of summing them.")
	flagManifest := fs.String("manifest", "", "Take the patch files from this manifest instead of the arguments.")
	flagField := fs.Int("field", 0, "With -manifest, the field (extension index) of the patches to stitch.")
	flagGroup := fs.Int("group", 0, "With -manifest, the index of the file group whose patches are stitched.")
	flagOut := fs.String("out", "", "Output file. Images are clamped to [0, 255], npy files are saved as float32.")
	_ = fs.Parse(args)

	if *flagOut == "" {
		return errors.New("stitch requires -out")
	}
	tile, err := toSize("tile", *flagTile)
	if err != nil {
		return err
	}
	patchSize, err := toSize("patch", *flagPatch)
	if err != nil {
		return err
	}
	cfg := patches.NewStitch(tile, patchSize, *flagOverlap)
	tileOut, err := toSize("tile_out", *flagTileOut)
	if err != nil {
		return err
	}
	patchOut, err := toSize("patch_out", *flagPatchOut)
	if err != nil {
		return err
	}
	if tileOut.Area() == 0 {
		tileOut = cfg.TileOutput()
	}
	if patchOut.Area() == 0 {
		patchOut = cfg.PatchOutput()
	}
	order, err := parseOrder(*flagOrder)
	if err != nil {
		return err
	}
	cfg.WithOutput(tileOut, patchOut).WithOrder(order)

	acc, err := patches.NewAccumulator[float64](cfg)
	if err != nil {
		return err
	}
	patchPaths := fs.Args()
	if *flagManifest != "" {
		patchPaths, err = patchesFromManifest(*flagManifest, *flagField, *flagGroup, acc.Grid().Len())
		if err != nil {
			return err
		}
	}
	if len(patchPaths) != acc.Grid().Len() {
		return errors.Wrapf(patches.ErrPatchCount, "%s: %d patch files given, the grid has %d positions",
			cfg, len(patchPaths), acc.Grid().Len())
	}

	// Images are loaded in [0, 255], npy files as is.
	imageCfg := raster.ImageConfig{MaxValue: 255}
	for _, patchPath := range patchPaths {
		patch, err := rasterfile.Read[float64](patchPath, imageCfg)
		if err != nil {
			return err
		}
		if err = acc.Add(patch); err != nil {
			return errors.WithMessagef(err, "stitching %q", patchPath)
		}
	}
	var stitched *raster.Raster[float64]
	if *flagAverage {
		stitched, err = acc.Average()
	} else {
		stitched, err = acc.Sum()
	}
	if err != nil {
		return err
	}

	if fsutil.Ext(*flagOut) == rasterfile.NpyExt {
		err = rasterfile.Write(*flagOut, raster.Convert[float32](stitched), imageCfg)
	} else {
		err = rasterfile.Write(*flagOut, raster.ConvertClamped[uint8](stitched, 0, 255), raster.ImageConfig{})
	}
	if err != nil {
		return err
	}
	klog.V(1).Infof("stitched %d patches into %s", acc.Count(), stitched)
	fmt.Printf("Saved %s to %q\n", stitched, *flagOut)
	return nil
}

// patchesFromManifest returns the paths of the given field of the entries of the given group: each
// group takes gridLen consecutive entries of the manifest.
func patchesFromManifest(manifestPath string, field, group, gridLen int) ([]string, error) {
	fileList, err := patchjob.ReadFileList(manifestPath)
	if err != nil {
		return nil, err
	}
	start, end := group*gridLen, (group+1)*gridLen
	if group < 0 || end > len(fileList) {
		return nil, errors.Errorf("manifest %q has %d entries, can't take group #%d of %d entries",
			manifestPath, len(fileList), group, gridLen)
	}
	if field < 0 || field >= len(fileList[0]) {
		return nil, errors.Errorf("manifest %q has %d fields, can't take field #%d", manifestPath, len(fileList[0]), field)
	}
	paths := make([]string, 0, gridLen)
	for _, entry := range fileList[start:end] {
		paths = append(paths, entry[field])
	}
	return paths, nil
}
