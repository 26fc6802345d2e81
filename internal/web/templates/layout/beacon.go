package layout

// beaconScript reports lifecycle signals so the server re-checks the session
// when the user comes back to the tab
const beaconScript = `<script>
(function () {
  function send(signal) {
    if (navigator.sendBeacon) {
      navigator.sendBeacon("/lifecycle/" + signal);
    } else {
      fetch("/lifecycle/" + signal, {method: "POST", credentials: "same-origin", keepalive: true});
    }
  }
  document.addEventListener("visibilitychange", function () {
    if (document.visibilityState === "visible") send("visibility");
  });
  window.addEventListener("focus", function () { send("focus"); });
  window.addEventListener("pageshow", function (e) { if (e.persisted) send("pageshow"); });
})();
</script>`
